package script

import "encoding/json"

// UniqueConstraintCreate is the shape upsert_entity and get_or_create send
// for each registered unique constraint: a single live lookup value to
// check/reserve against uc.hash_key.
type UniqueConstraintCreate struct {
	Fields          []string `json:"fields"`
	HashKey         string   `json:"hash_key"`
	Values          []string `json:"values"`
	Present         []bool   `json:"present"`
	CaseInsensitive bool     `json:"case_insensitive"`
}

// UniqueConstraintPatch is the shape patch_entity and upsert's update branch
// send: the script reads the current document itself and compares the old
// lookup value against the caller-supplied new one before swapping.
type UniqueConstraintPatch struct {
	Fields          []string `json:"fields"`
	HashKey         string   `json:"hash_key"`
	NewValues       []string `json:"new_values"`
	NewPresent      []bool   `json:"new_present"`
	CaseInsensitive bool     `json:"case_insensitive"`
}

// UniqueConstraintRelease is the shape delete_entity sends: enough to
// recompute a lookup value from a document at release time.
type UniqueConstraintRelease struct {
	Fields          []string `json:"fields"`
	HashKey         string   `json:"hash_key"`
	CaseInsensitive bool     `json:"case_insensitive"`
}

// RelationMutation describes one forward/reverse relation-set update,
// tokenized server-side from RelationKey per spec.md §4.4.
type RelationMutation struct {
	RelationKey     string   `json:"relation_key"`
	Add             []string `json:"add,omitempty"`
	Remove          []string `json:"remove,omitempty"`
	MaintainReverse bool     `json:"maintain_reverse"`
}

// DatetimeMirror writes or clears a plain mirror field alongside a
// canonical datetime field (spec.md §3, DatetimeMirrors).
type DatetimeMirror struct {
	MirrorField string `json:"mirror_field"`
	Value       string `json:"value,omitempty"`
	Present     bool   `json:"present"`
}

// Operation is a single patch_entity/upsert-update field mutation
// (spec.md §4.2).
type Operation struct {
	Type      string          `json:"type"`
	Path      string          `json:"path"`
	ValueJSON json.RawMessage `json:"value_json,omitempty"`
	Value     float64         `json:"value,omitempty"`
	Mirror    *DatetimeMirror `json:"mirror,omitempty"`
}

// RelationSpec is one node of the cascade tree delete_entity walks,
// materialized by the planner from the entity registry.
type RelationSpec struct {
	Alias             string                    `json:"alias"`
	Cascade           string                    `json:"cascade"`
	MaintainReverse   bool                      `json:"maintain_reverse"`
	TargetService     string                    `json:"target_service"`
	TargetCollection  string                    `json:"target_collection"`
	UniqueConstraints []UniqueConstraintRelease `json:"unique_constraints,omitempty"`
	InboundRelations  []InboundRelation         `json:"inbound_relations,omitempty"`
	Children          []RelationSpec            `json:"children,omitempty"`
}

// InboundRelation names a relation declared on another registered type that
// points at the entity being deleted (the delete root or one of its
// cascaded descendants), scrubbed by delete_entity.lua's recursive walk
// (spec.md §8.1 "cascade completeness").
type InboundRelation struct {
	OwningService string `json:"owning_service"`
	Alias         string `json:"alias"`
}

// UpsertEntityPayload is the envelope for upsert_entity (spec.md §4.1).
type UpsertEntityPayload struct {
	Key                   string                   `json:"key"`
	EntityID              string                   `json:"entity_id"`
	PayloadJSON           json.RawMessage          `json:"payload_json"`
	SchemaVersion         int                      `json:"schema_version"`
	HasExpectedVersion    bool                     `json:"has_expected_version"`
	ExpectedVersion       int                      `json:"expected_version"`
	UniqueConstraints     []UniqueConstraintCreate `json:"unique_constraints,omitempty"`
	DatetimeMirrors       []DatetimeMirror         `json:"datetime_mirrors,omitempty"`
	Relations             []RelationMutation       `json:"relations,omitempty"`
	IdempotencyKey        string                   `json:"idempotency_key,omitempty"`
	IdempotencyServiceKey string                   `json:"idempotency_service_key,omitempty"`
	IdempotencyTTL        int                      `json:"idempotency_ttl"`
	HasIdempotencyTTL     bool                     `json:"has_idempotency_ttl"`
}

// PatchEntityPayload is the envelope for patch_entity (spec.md §4.2).
type PatchEntityPayload struct {
	Key                   string                  `json:"key"`
	EntityID              string                  `json:"entity_id"`
	Operations            []Operation             `json:"operations,omitempty"`
	Relations             []RelationMutation      `json:"relations,omitempty"`
	HasExpectedVersion    bool                    `json:"has_expected_version"`
	ExpectedVersion       int                     `json:"expected_version"`
	UniqueConstraints     []UniqueConstraintPatch `json:"unique_constraints,omitempty"`
	StrictVersionConflict bool                    `json:"strict_version_conflict"`
	IdempotencyKey        string                  `json:"idempotency_key,omitempty"`
	IdempotencyEntityKey  string                  `json:"idempotency_entity_key,omitempty"`
	IdempotencyServiceKey string                  `json:"idempotency_service_key,omitempty"`
	IdempotencyTTL        int                     `json:"idempotency_ttl"`
	HasIdempotencyTTL     bool                    `json:"has_idempotency_ttl"`
}

// DeleteEntityPayload is the envelope for delete_entity (spec.md §4.3).
type DeleteEntityPayload struct {
	Key                string                    `json:"key"`
	Service            string                    `json:"service"`
	Prefix             string                    `json:"prefix"`
	HasExpectedVersion bool                      `json:"has_expected_version"`
	ExpectedVersion    int                       `json:"expected_version"`
	UniqueConstraints  []UniqueConstraintRelease `json:"unique_constraints,omitempty"`
	Relations          []RelationSpec            `json:"relations,omitempty"`
	InboundRelations   []InboundRelation         `json:"inbound_relations,omitempty"`
}

// GetOrCreatePayload is the envelope for get_or_create (spec.md §4.5).
type GetOrCreatePayload struct {
	EntityKey             string                   `json:"entity_key"`
	EntityID              string                   `json:"entity_id"`
	CreatePayloadJSON     json.RawMessage          `json:"create_payload_json"`
	SchemaVersion         int                      `json:"schema_version"`
	UniqueConstraints     []UniqueConstraintCreate `json:"unique_constraints,omitempty"`
	DatetimeMirrors       []DatetimeMirror         `json:"datetime_mirrors,omitempty"`
	Relations             []RelationMutation       `json:"relations,omitempty"`
	IdempotencyKey        string                   `json:"idempotency_key,omitempty"`
	IdempotencyServiceKey string                   `json:"idempotency_service_key,omitempty"`
	IdempotencyTTL        int                      `json:"idempotency_ttl"`
	HasIdempotencyTTL     bool                     `json:"has_idempotency_ttl"`
}

// UpsertPayload is the envelope for the branching upsert operation
// (spec.md §4.5). A single idempotency slot, keyed off the update target,
// covers both branches.
type UpsertPayload struct {
	UpdateKey               string                   `json:"update_key"`
	UpdateEntityID           string                   `json:"update_entity_id"`
	UpdateUniqueConstraints  []UniqueConstraintPatch  `json:"update_unique_constraints,omitempty"`
	UpdateOperations         []Operation              `json:"update_operations,omitempty"`
	UpdateRelations          []RelationMutation       `json:"update_relations,omitempty"`
	CreateKey                string                   `json:"create_key"`
	CreateEntityID           string                   `json:"create_entity_id"`
	CreatePayloadJSON        json.RawMessage          `json:"create_payload_json"`
	SchemaVersion            int                      `json:"schema_version"`
	CreateUniqueConstraints  []UniqueConstraintCreate `json:"create_unique_constraints,omitempty"`
	DatetimeMirrors          []DatetimeMirror         `json:"datetime_mirrors,omitempty"`
	CreateRelations          []RelationMutation       `json:"create_relations,omitempty"`
	IdempotencyKey           string                   `json:"idempotency_key,omitempty"`
	IdempotencyEntityKey     string                   `json:"idempotency_entity_key,omitempty"`
	IdempotencyTTL           int                      `json:"idempotency_ttl"`
	HasIdempotencyTTL        bool                     `json:"has_idempotency_ttl"`
}

// reply is the superset of fields any of the six scripts may return.
// Decoded once per call, then mapped onto typed results or errs errors.
type reply struct {
	OK                bool            `json:"ok"`
	Error             string          `json:"error"`
	Version           *int            `json:"version"`
	EntityID          string          `json:"entity_id"`
	Expected          int             `json:"expected"`
	Actual            int             `json:"actual"`
	Fields            []string        `json:"fields"`
	Values            []string        `json:"values"`
	ExistingEntityID  string          `json:"existing_entity_id"`
	OpType            string          `json:"op_type"`
	Branch            string          `json:"branch"`
	Entity            json.RawMessage `json:"entity"`
	DatetimeMirrors   []DatetimeMirror `json:"datetime_mirrors"`
}
