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

func teamRegistryWithUnique() *entity.Registry {
	reg := entity.NewRegistry()
	reg.RegisterMeta(entity.TypeMeta{
		Service:           "acct",
		Collection:        "team",
		UniqueConstraints: []entity.UniqueConstraint{{Fields: []string{"name"}, CaseInsensitive: true}},
		Relations: []entity.RelationDef{
			{Alias: "players", TargetCollection: "player", Cascade: entity.CascadeNone, MaintainReverse: true},
		},
	})
	return reg
}

func TestPatchBuildsOperationsAndUniqueConstraints(t *testing.T) {
	reg := teamRegistryWithUnique()
	fs := &fakeStore{reply: `{"ok":true,"version":2,"entity_id":"t1"}`}
	sc := script.New(fs)
	p := New(reg, keys.NewSchema("snugom"), sc, config.Config{})

	plan := NewPatchPlan("acct", "team", "t1").
		Assign("name", "Rockets").
		Increment("score", 3).
		DeleteField("temp_flag").
		Connect("players", "p1").
		Disconnect("players", "p2")

	res, err := p.Patch(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "t1", res.EntityID)
	require.NotNil(t, res.Version)
	assert.Equal(t, 2, *res.Version)

	require.Len(t, fs.calls, 1)
	var payload script.PatchEntityPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["patch_entity"], &payload))

	require.Len(t, payload.Operations, 3)
	assert.Equal(t, "assign", payload.Operations[0].Type)
	assert.Equal(t, "$.name", payload.Operations[0].Path)
	assert.Equal(t, "increment", payload.Operations[1].Type)
	assert.Equal(t, float64(3), payload.Operations[1].Value)
	assert.Equal(t, "delete", payload.Operations[2].Type)

	require.Len(t, payload.UniqueConstraints, 1)
	assert.Equal(t, []string{"Rockets"}, payload.UniqueConstraints[0].NewValues)
	assert.True(t, payload.UniqueConstraints[0].NewPresent[0])

	require.Len(t, payload.Relations, 1)
	assert.Equal(t, "snugom:acct:rel:players:t1", payload.Relations[0].RelationKey)
	assert.Equal(t, []string{"p1"}, payload.Relations[0].Add)
	assert.Equal(t, []string{"p2"}, payload.Relations[0].Remove)
}

func TestPatchWithExpectedVersionAndIdempotencyKey(t *testing.T) {
	reg := teamRegistryWithUnique()
	fs := &fakeStore{reply: `{"ok":true,"version":1,"entity_id":"t1"}`}
	sc := script.New(fs)
	p := New(reg, keys.NewSchema("snugom"), sc, config.Config{StrictVersionConflict: true})

	plan := NewPatchPlan("acct", "team", "t1").
		Assign("name", "Rockets").
		WithExpectedVersion(0).
		WithIdempotencyKey("req-9")

	_, err := p.Patch(context.Background(), plan)
	require.NoError(t, err)

	var payload script.PatchEntityPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["patch_entity"], &payload))
	assert.True(t, payload.HasExpectedVersion)
	assert.Equal(t, 0, payload.ExpectedVersion)
	assert.Equal(t, "req-9", payload.IdempotencyKey)
	assert.Equal(t, "snugom:acct:team:t1:idempotency:req-9", payload.IdempotencyEntityKey)
	assert.Equal(t, "snugom:acct:idempotency:req-9", payload.IdempotencyServiceKey)
	assert.True(t, payload.StrictVersionConflict)
}

func TestPatchStrictVersionConflictOverridesConfigDefault(t *testing.T) {
	reg := teamRegistryWithUnique()
	fs := &fakeStore{reply: `{"ok":true,"version":1,"entity_id":"t1"}`}
	sc := script.New(fs)
	p := New(reg, keys.NewSchema("snugom"), sc, config.Config{StrictVersionConflict: true})

	plan := NewPatchPlan("acct", "team", "t1").Assign("name", "Rockets").WithStrictVersionConflict(false)
	_, err := p.Patch(context.Background(), plan)
	require.NoError(t, err)

	var payload script.PatchEntityPayload
	require.NoError(t, json.Unmarshal(fs.calls[0].envelope["patch_entity"], &payload))
	assert.False(t, payload.StrictVersionConflict)
}
