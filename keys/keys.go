// Package keys builds the deterministic, colon-delimited key layout the
// entire core depends on (spec.md §3.1). Every script assumes this exact
// layout; changing it means updating the Lua scripts in package script
// together with this file (see DESIGN NOTES, "Key-prefix parsing inside
// scripts").
package keys

import "strings"

// Schema carries the deployment-wide key prefix. It is intentionally not
// defaultable to empty: two schemas sharing a store without a distinct
// prefix would collide on every key.
type Schema struct {
	Prefix string
}

// NewSchema returns a Schema for a non-empty prefix.
func NewSchema(prefix string) Schema {
	if prefix == "" {
		panic("keys: prefix must not be empty")
	}
	return Schema{Prefix: prefix}
}

// Entity returns the key for an entity document:
// {prefix}:{service}:{collection}:{entity_id}
func (s Schema) Entity(service, collection, id string) string {
	return strings.Join([]string{s.Prefix, service, collection, id}, ":")
}

// Relation returns the key for a forward relation set:
// {prefix}:{service}:rel:{alias}:{left_id}
func (s Schema) Relation(service, alias, leftID string) string {
	return strings.Join([]string{s.Prefix, service, "rel", alias, leftID}, ":")
}

// ReverseRelation returns the key for a reverse relation set:
// {prefix}:{service}:rel:{alias}_reverse:{right_id}
func (s Schema) ReverseRelation(service, alias, rightID string) string {
	return strings.Join([]string{s.Prefix, service, "rel", alias + "_reverse", rightID}, ":")
}

// UniqueHash returns the key for a single-field unique-constraint hash:
// {prefix}:{service}:{collection}:unique:{field}
func (s Schema) UniqueHash(service, collection, field string) string {
	return strings.Join([]string{s.Prefix, service, collection, "unique", field}, ":")
}

// CompoundUniqueHash returns the key for a multi-field unique-constraint
// hash: {prefix}:{service}:{collection}:unique_compound:{field1_field2_...}
func (s Schema) CompoundUniqueHash(service, collection string, fields []string) string {
	return strings.Join([]string{s.Prefix, service, collection, "unique_compound", strings.Join(fields, "_")}, ":")
}

// UniqueHashFor returns UniqueHash or CompoundUniqueHash depending on how
// many fields the constraint spans.
func (s Schema) UniqueHashFor(service, collection string, fields []string) string {
	if len(fields) == 1 {
		return s.UniqueHash(service, collection, fields[0])
	}
	return s.CompoundUniqueHash(service, collection, fields)
}

// IdempotencyEntity returns the per-entity idempotency slot key:
// {entity_key}:idempotency:{key}
func (s Schema) IdempotencyEntity(entityKey, idemKey string) string {
	return entityKey + ":idempotency:" + idemKey
}

// IdempotencyService returns the per-service idempotency slot key:
// {prefix}:{service}:idempotency:{key}
func (s Schema) IdempotencyService(service, idemKey string) string {
	return strings.Join([]string{s.Prefix, service, "idempotency", idemKey}, ":")
}

// LookupValue joins evaluated field values with ":" per spec.md §3.1.
// When caseInsensitive is set, string components are lowercased first. A
// nil entry in values (represented here by present[i] == false) disables enforcement
// for the whole row and LookupValue returns ("", false).
func LookupValue(values []string, present []bool, caseInsensitive bool) (string, bool) {
	parts := make([]string, len(values))
	for i, v := range values {
		if !present[i] {
			return "", false
		}
		if caseInsensitive {
			v = strings.ToLower(v)
		}
		parts[i] = v
	}
	return strings.Join(parts, ":"), true
}

// ParseRelationKey recovers the alias and left-id a forward relation key
// was built from, by tokenizing on ":" at positions 4 and 5 (1-indexed:
// prefix, service, "rel", alias, left_id). This mirrors what
// relation_mutation does server-side (spec.md §4.4) and exists so Go
// callers can validate a key before dispatching the script.
func ParseRelationKey(key string) (alias, leftID string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 5 || parts[2] != "rel" {
		return "", "", false
	}
	return parts[3], parts[4], true
}
