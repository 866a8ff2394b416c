package planner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/str11ngfello/snugom/config"
	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/keys"
	"github.com/str11ngfello/snugom/script"
)

// fakeStore mirrors script_test.go's mock without a live Redis process.
type fakeStore struct {
	redis.Scripter
	calls []call
	reply string
}

type call struct {
	envelope map[string]json.RawMessage
}

func (f *fakeStore) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	var envelope map[string]json.RawMessage
	_ = json.Unmarshal([]byte(args[0].(string)), &envelope)
	f.calls = append(f.calls, call{envelope: envelope})
	cmd := redis.NewCmd(ctx)
	cmd.SetVal(f.reply)
	return cmd
}

func (f *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd { return redis.NewStringCmd(ctx) }
func (f *fakeStore) Del(ctx context.Context, keys ...string) *redis.IntCmd { return redis.NewIntCmd(ctx) }

type user struct {
	UserID    string `json:"-"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (u *user) Service() string               { return "acct" }
func (u *user) Collection() string             { return "user" }
func (u *user) IDField() string               { return "user_id" }
func (u *user) ID() string                    { return u.UserID }
func (u *user) SetID(id string)               { u.UserID = id }
func (u *user) SchemaVersion() int            { return 1 }
func (u *user) IndexSpec() []entity.IndexField { return nil }
func (u *user) UniqueConstraints() []entity.UniqueConstraint {
	return []entity.UniqueConstraint{{Fields: []string{"email"}, CaseInsensitive: true}}
}
func (u *user) Relations() []entity.RelationDef { return nil }
func (u *user) DatetimeMirrors() []entity.DatetimeMirror {
	return []entity.DatetimeMirror{{SourceField: "created_at", MirrorField: "created_at_ts"}}
}
func (u *user) Encode() (json.RawMessage, error) { return json.Marshal(u) }

func newTestPlanner(t *testing.T, reply string) (*Planner, *fakeStore) {
	t.Helper()
	reg := entity.NewRegistry()
	reg.Register(&user{})
	fs := &fakeStore{reply: reply}
	sc := script.New(fs)
	schema := keys.NewSchema("snugom")
	return New(reg, schema, sc, config.Config{IdempotencyTTL: 900 * time.Second}), fs
}

func TestExecuteSynthesizesID(t *testing.T) {
	p, fs := newTestPlanner(t, `{"ok":true,"version":1,"entity_id":"placeholder"}`)

	u := &user{Name: "Ada", Email: "ada@example.com"}
	res, err := p.Execute(context.Background(), NewPlan(NewNode(u)))
	require.NoError(t, err)

	assert.NotEmpty(t, u.UserID)
	assert.Len(t, fs.calls, 1)
	require.Contains(t, fs.calls[0].envelope, "upsert_entity")

	var payload script.UpsertEntityPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["upsert_entity"], &payload))
	assert.Equal(t, u.UserID, payload.EntityID)
	assert.NotEmpty(t, payload.UniqueConstraints)
	assert.Equal(t, "ada@example.com", payload.UniqueConstraints[0].Values[0])
	_ = res
}

func TestExecuteInjectsTimestamps(t *testing.T) {
	p, fs := newTestPlanner(t, `{"ok":true,"version":1,"entity_id":"u1"}`)

	u := &user{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	_, err := p.Execute(context.Background(), NewPlan(NewNode(u)))
	require.NoError(t, err)

	var payload script.UpsertEntityPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["upsert_entity"], &payload))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(payload.PayloadJSON, &doc))
	assert.NotEmpty(t, doc["created_at"])

	require.Len(t, payload.DatetimeMirrors, 1)
	assert.True(t, payload.DatetimeMirrors[0].Present)
}

func TestExecuteWithIdempotencyKey(t *testing.T) {
	p, fs := newTestPlanner(t, `{"ok":true,"version":1,"entity_id":"u1"}`)

	u := &user{UserID: "u1", Name: "Ada", Email: "ada@example.com"}
	_, err := p.Execute(context.Background(), NewPlan(NewNode(u)).WithIdempotencyKey("req-1"))
	require.NoError(t, err)

	var payload script.UpsertEntityPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["upsert_entity"], &payload))
	assert.Equal(t, "req-1", payload.IdempotencyKey)
	assert.True(t, payload.HasIdempotencyTTL)
	assert.Equal(t, 900, payload.IdempotencyTTL)
}

func TestExecuteNestedCreateBatchesParentRelation(t *testing.T) {
	reg := entity.NewRegistry()
	reg.RegisterMeta(entity.TypeMeta{
		Service:    "acct",
		Collection: "guild",
		Relations: []entity.RelationDef{
			{Alias: "members", TargetCollection: "member", Cascade: entity.CascadeDeleteDependents, MaintainReverse: true},
		},
	})
	reg.RegisterMeta(entity.TypeMeta{Service: "acct", Collection: "member"})

	fs := &fakeStore{reply: `{"ok":true,"version":1,"entity_id":"x"}`}
	sc := script.New(fs)
	p := New(reg, keys.NewSchema("snugom"), sc, config.Config{})

	guild := newStub("acct", "guild", "g1")
	member := newStub("acct", "member", "m1")
	plan := NewPlan(NewNode(guild).Create("members", NewNode(member)))

	_, err := p.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, fs.calls, 2)

	var parentPayload script.UpsertEntityPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["upsert_entity"], &parentPayload))
	require.Len(t, parentPayload.Relations, 1)
	assert.Equal(t, []string{"m1"}, parentPayload.Relations[0].Add)
	assert.True(t, parentPayload.Relations[0].MaintainReverse)
}

func TestExecuteConnectAndDisconnectBuildRelationMutation(t *testing.T) {
	reg := entity.NewRegistry()
	reg.RegisterMeta(entity.TypeMeta{
		Service:    "acct",
		Collection: "team",
		Relations: []entity.RelationDef{
			{Alias: "players", TargetCollection: "player", Cascade: entity.CascadeNone, MaintainReverse: true},
		},
	})

	fs := &fakeStore{reply: `{"ok":true,"version":1,"entity_id":"t1"}`}
	sc := script.New(fs)
	p := New(reg, keys.NewSchema("snugom"), sc, config.Config{})

	team := newStub("acct", "team", "t1")
	plan := NewPlan(NewNode(team).Connect("players", "p1").Connect("players", "p2").Disconnect("players", "p3"))

	_, err := p.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, fs.calls, 1)

	var payload script.UpsertEntityPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["upsert_entity"], &payload))
	require.Len(t, payload.Relations, 1)
	assert.Equal(t, "snugom:acct:rel:players:t1", payload.Relations[0].RelationKey)
	assert.Equal(t, []string{"p1", "p2"}, payload.Relations[0].Add)
	assert.Equal(t, []string{"p3"}, payload.Relations[0].Remove)
	assert.True(t, payload.Relations[0].MaintainReverse)
}

// stub is a minimal entity.Entity for tests that don't exercise unique
// constraints or datetime mirrors.
type stub struct {
	service, collection, id string
}

func newStub(service, collection, id string) *stub { return &stub{service, collection, id} }

func (s *stub) Service() string                         { return s.service }
func (s *stub) Collection() string                      { return s.collection }
func (s *stub) IDField() string                          { return "id" }
func (s *stub) ID() string                               { return s.id }
func (s *stub) SetID(id string)                          { s.id = id }
func (s *stub) SchemaVersion() int                       { return 1 }
func (s *stub) IndexSpec() []entity.IndexField            { return nil }
func (s *stub) UniqueConstraints() []entity.UniqueConstraint { return nil }
func (s *stub) Relations() []entity.RelationDef            { return nil }
func (s *stub) DatetimeMirrors() []entity.DatetimeMirror    { return nil }
func (s *stub) Encode() (json.RawMessage, error)            { return json.Marshal(map[string]any{}) }
