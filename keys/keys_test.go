package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaEntity(t *testing.T) {
	s := NewSchema("snug")
	assert.Equal(t, "snug:guilds:guild:g1", s.Entity("guilds", "guild", "g1"))
}

func TestSchemaRelationPair(t *testing.T) {
	s := NewSchema("snug")
	fwd := s.Relation("guilds", "guild_members", "g1")
	rev := s.ReverseRelation("guilds", "guild_members", "u1")
	assert.Equal(t, "snug:guilds:rel:guild_members:g1", fwd)
	assert.Equal(t, "snug:guilds:rel:guild_members_reverse:u1", rev)
}

func TestSchemaUniqueHash(t *testing.T) {
	s := NewSchema("snug")
	assert.Equal(t, "snug:guilds:user:unique:email", s.UniqueHash("guilds", "user", "email"))
	assert.Equal(t, "snug:guilds:user:unique_compound:tenant_slug",
		s.CompoundUniqueHash("guilds", "user", []string{"tenant", "slug"}))
	assert.Equal(t, s.UniqueHash("guilds", "user", "email"), s.UniqueHashFor("guilds", "user", []string{"email"}))
	assert.Equal(t, s.CompoundUniqueHash("guilds", "user", []string{"tenant", "slug"}),
		s.UniqueHashFor("guilds", "user", []string{"tenant", "slug"}))
}

func TestSchemaIdempotency(t *testing.T) {
	s := NewSchema("snug")
	entityKey := s.Entity("guilds", "guild", "g1")
	assert.Equal(t, "snug:guilds:guild:g1:idempotency:k", s.IdempotencyEntity(entityKey, "k"))
	assert.Equal(t, "snug:guilds:idempotency:k", s.IdempotencyService("guilds", "k"))
}

func TestLookupValue(t *testing.T) {
	v, ok := LookupValue([]string{"A@X.com"}, []bool{true}, true)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", v)

	v, ok = LookupValue([]string{"Tenant", "Slug"}, []bool{true, true}, false)
	require.True(t, ok)
	assert.Equal(t, "Tenant:Slug", v)

	_, ok = LookupValue([]string{"Tenant", ""}, []bool{true, false}, false)
	assert.False(t, ok)
}

func TestParseRelationKey(t *testing.T) {
	s := NewSchema("snug")
	key := s.Relation("guilds", "guild_members", "g1")
	alias, leftID, ok := ParseRelationKey(key)
	require.True(t, ok)
	assert.Equal(t, "guild_members", alias)
	assert.Equal(t, "g1", leftID)

	_, _, ok = ParseRelationKey("snug:guilds:guild:g1")
	assert.False(t, ok)
}

func TestSchemaPanicsOnEmptyPrefix(t *testing.T) {
	assert.Panics(t, func() { NewSchema("") })
}
