package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
entities:
  - service: acct
    collection: guild
    id_field: guild_id
    schema: 1
    index:
      - path: "$.name"
        alias: name
        type: TEXT
        searchable: true
    unique:
      - fields: ["slug"]
        case_insensitive: true
    relations:
      - alias: members
        target_collection: member
        cascade: delete_dependents
        maintain_reverse: true
    datetime_mirrors:
      - source_field: created_at
        mirror_field: created_at_ts
`

func TestLoadRegistryYAML(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, LoadRegistryYAML(r, []byte(sampleYAML)))

	m, ok := r.Lookup("acct", "guild")
	require.True(t, ok)
	assert.Equal(t, "guild_id", m.IDField)
	require.Len(t, m.IndexSpec, 1)
	assert.Equal(t, IndexTEXT, m.IndexSpec[0].Type)
	require.Len(t, m.UniqueConstraints, 1)
	assert.True(t, m.UniqueConstraints[0].CaseInsensitive)
	require.Len(t, m.Relations, 1)
	assert.Equal(t, CascadeDeleteDependents, m.Relations[0].Cascade)
	require.Len(t, m.DatetimeMirrors, 1)
	assert.Equal(t, "created_at_ts", m.DatetimeMirrors[0].MirrorField)
}

func TestLoadRegistryYAMLRejectsUnknownIndexType(t *testing.T) {
	const bad = `
entities:
  - service: acct
    collection: guild
    index:
      - path: "$.x"
        alias: x
        type: BOGUS
`
	r := NewRegistry()
	err := LoadRegistryYAML(r, []byte(bad))
	assert.Error(t, err)
}

func TestLoadRegistryYAMLRejectsMissingCollection(t *testing.T) {
	const bad = `
entities:
  - service: acct
`
	r := NewRegistry()
	err := LoadRegistryYAML(r, []byte(bad))
	assert.Error(t, err)
}

func TestLoadRegistryYAMLRejectsUnknownCascade(t *testing.T) {
	const bad = `
entities:
  - service: acct
    collection: guild
    relations:
      - alias: x
        target_collection: y
        cascade: bogus
`
	r := NewRegistry()
	err := LoadRegistryYAML(r, []byte(bad))
	assert.Error(t, err)
}
