package planner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/str11ngfello/snugom/config"
	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/keys"
	"github.com/str11ngfello/snugom/script"
)

func TestGetOrCreateBuildsCreatePayload(t *testing.T) {
	reg := entity.NewRegistry()
	reg.RegisterMeta(entity.TypeMeta{
		Service:    "acct",
		Collection: "team",
		Relations: []entity.RelationDef{
			{Alias: "players", TargetCollection: "player", Cascade: entity.CascadeNone, MaintainReverse: true},
		},
	})
	fs := &fakeStore{reply: `{"ok":true,"branch":"created","version":1,"entity_id":"t1"}`}
	sc := script.New(fs)
	p := New(reg, keys.NewSchema("snugom"), sc, config.Config{})

	team := newStub("acct", "team", "t1")
	plan := NewGetOrCreatePlan(NewNode(team).Connect("players", "p1")).WithIdempotencyKey("req-5")

	out, err := p.GetOrCreate(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "created", out.Branch)
	assert.Equal(t, "t1", out.EntityID)

	require.Len(t, fs.calls, 1)
	var payload script.GetOrCreatePayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["get_or_create"], &payload))
	assert.Equal(t, "snugom:acct:team:t1", payload.EntityKey)
	assert.Equal(t, "t1", payload.EntityID)
	assert.Equal(t, "req-5", payload.IdempotencyKey)
	assert.Equal(t, "snugom:acct:idempotency:req-5", payload.IdempotencyServiceKey)
	require.Len(t, payload.Relations, 1)
	assert.Equal(t, []string{"p1"}, payload.Relations[0].Add)
}

func TestGetOrCreateRejectsNestedCreate(t *testing.T) {
	reg := entity.NewRegistry()
	reg.RegisterMeta(entity.TypeMeta{
		Service:    "acct",
		Collection: "team",
		Relations: []entity.RelationDef{
			{Alias: "players", TargetCollection: "player", Cascade: entity.CascadeNone},
		},
	})
	fs := &fakeStore{reply: `{"ok":true,"branch":"created","version":1,"entity_id":"t1"}`}
	sc := script.New(fs)
	p := New(reg, keys.NewSchema("snugom"), sc, config.Config{})

	team := newStub("acct", "team", "t1")
	player := newStub("acct", "player", "p1")
	plan := NewGetOrCreatePlan(NewNode(team).Create("players", NewNode(player)))

	_, err := p.GetOrCreate(context.Background(), plan)
	assert.Error(t, err)
	assert.Empty(t, fs.calls)
}

func TestUpsertBuildsBothBranchesWithSharedRelationEdits(t *testing.T) {
	reg := entity.NewRegistry()
	reg.RegisterMeta(entity.TypeMeta{
		Service:           "acct",
		Collection:        "team",
		UniqueConstraints: []entity.UniqueConstraint{{Fields: []string{"name"}, CaseInsensitive: true}},
		Relations: []entity.RelationDef{
			{Alias: "players", TargetCollection: "player", Cascade: entity.CascadeNone, MaintainReverse: true},
		},
	})
	fs := &fakeStore{reply: `{"ok":true,"branch":"updated","version":2,"entity_id":"t1"}`}
	sc := script.New(fs)
	p := New(reg, keys.NewSchema("snugom"), sc, config.Config{})

	create := newStub("acct", "team", "t2")
	plan := NewUpsertPlan("acct", "team", "t1", NewNode(create).Connect("players", "p1")).
		Assign("name", "Rockets").
		WithIdempotencyKey("req-7")

	out, err := p.Upsert(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "updated", out.Branch)

	require.Len(t, fs.calls, 1)
	var payload script.UpsertPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["upsert"], &payload))

	assert.Equal(t, "snugom:acct:team:t1", payload.UpdateKey)
	assert.Equal(t, "t1", payload.UpdateEntityID)
	assert.Equal(t, "snugom:acct:team:t2", payload.CreateKey)
	assert.Equal(t, "t2", payload.CreateEntityID)

	require.Len(t, payload.UpdateOperations, 1)
	assert.Equal(t, "assign", payload.UpdateOperations[0].Type)
	require.Len(t, payload.UpdateUniqueConstraints, 1)

	require.Len(t, payload.UpdateRelations, 1)
	assert.Equal(t, "snugom:acct:rel:players:t1", payload.UpdateRelations[0].RelationKey)
	require.Len(t, payload.CreateRelations, 1)
	assert.Equal(t, "snugom:acct:rel:players:t2", payload.CreateRelations[0].RelationKey)

	assert.Equal(t, "req-7", payload.IdempotencyKey)
	assert.Equal(t, "snugom:acct:team:t1:idempotency:req-7", payload.IdempotencyEntityKey)
}

func TestUpsertSynthesizesCreateIDWhenEmpty(t *testing.T) {
	reg := entity.NewRegistry()
	reg.RegisterMeta(entity.TypeMeta{Service: "acct", Collection: "team"})
	fs := &fakeStore{reply: `{"ok":true,"branch":"created","version":1,"entity_id":"generated"}`}
	sc := script.New(fs)
	p := New(reg, keys.NewSchema("snugom"), sc, config.Config{})

	create := newStub("acct", "team", "")
	plan := NewUpsertPlan("acct", "team", "t1", NewNode(create))

	_, err := p.Upsert(context.Background(), plan)
	require.NoError(t, err)

	var payload script.UpsertPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["upsert"], &payload))
	assert.NotEmpty(t, payload.CreateEntityID)
	assert.Equal(t, "t1", payload.UpdateEntityID)
}
