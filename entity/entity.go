// Package entity defines the typed metadata contract that every stored
// type publishes to the mutation core. It is the Go-native stand-in for
// the derive-macro-generated metadata described in the design notes: a
// hand-written impl-per-type, a reflective registry, or generated code
// all satisfy the same interface.
package entity

import "encoding/json"

// IndexType names the RediSearch field type a value is indexed as.
type IndexType int

const (
	// IndexTAG is an exact-match, comma-free tag field.
	IndexTAG IndexType = iota
	// IndexTEXT is a tokenized, full-text field.
	IndexTEXT
	// IndexNUMERIC is a sortable/rangeable numeric field.
	IndexNUMERIC
)

func (t IndexType) String() string {
	switch t {
	case IndexTAG:
		return "TAG"
	case IndexTEXT:
		return "TEXT"
	case IndexNUMERIC:
		return "NUMERIC"
	default:
		return "UNKNOWN"
	}
}

// IndexField declares how a single JSON path is exposed to search.
type IndexField struct {
	// Path is the JSON path within the document, e.g. "$.name".
	Path string
	// Alias is the field name used in filter expressions and FT.SEARCH output.
	Alias      string
	Type       IndexType
	Searchable bool
	Sortable   bool
}

// UniqueConstraint declares a single- or multi-field uniqueness rule.
// Fields are JSON paths (dotted, not "$."-prefixed) evaluated against the
// candidate document to build the lookup value (spec.md §3.1).
type UniqueConstraint struct {
	Fields          []string
	CaseInsensitive bool
}

// Name returns the constraint's hash-name component, joining fields with
// "_" per the key layout in spec.md §3.1.
func (u UniqueConstraint) Name() string {
	out := u.Fields[0]
	for _, f := range u.Fields[1:] {
		out += "_" + f
	}
	return out
}

// Compound reports whether the constraint spans more than one field.
func (u UniqueConstraint) Compound() bool { return len(u.Fields) > 1 }

// CascadePolicy names the behavior applied to relation members when the
// owning entity is deleted.
type CascadePolicy int

const (
	// CascadeNone leaves members untouched (but reverse back-links into
	// the deleted entity are still scrubbed).
	CascadeNone CascadePolicy = iota
	// CascadeDeleteDependents recursively deletes every member.
	CascadeDeleteDependents
	// CascadeDetachDependents removes the relation without deleting members.
	CascadeDetachDependents
)

func (c CascadePolicy) String() string {
	switch c {
	case CascadeDeleteDependents:
		return "delete_dependents"
	case CascadeDetachDependents:
		return "detach_dependents"
	default:
		return "none"
	}
}

// RelationDef declares one alias-named relation from an entity to a
// target collection, optionally mirrored in reverse.
type RelationDef struct {
	Alias            string
	TargetService    string // empty means "same service as the owner"
	TargetCollection string
	Cascade          CascadePolicy
	MaintainReverse  bool
}

// DatetimeMirror declares a numeric shadow field kept in sync with a
// datetime field so it can be sorted/ranged by NUMERIC search.
type DatetimeMirror struct {
	// SourceField is the JSON path of the datetime value (RFC3339 string).
	SourceField string
	// MirrorField is the JSON path the numeric epoch-seconds copy is written to.
	MirrorField string
}

// Entity is the metadata+codec contract every registered type satisfies.
// Compile-time code generation, a reflective registry, or a hand-written
// impl-per-type all satisfy this contract equally.
type Entity interface {
	// Service groups collections that share relations and idempotency scope.
	Service() string
	// Collection is the short collection identifier within the service.
	Collection() string
	// IDField is the entity-specific name of the id field (for error messages,
	// not for key construction — key construction always uses ID()).
	IDField() string
	// ID returns this instance's unique-within-collection identifier.
	ID() string
	// SchemaVersion is the positive integer schema generation this instance
	// was encoded under (mirrors the stored metadata.schema value).
	SchemaVersion() int
	IndexSpec() []IndexField
	UniqueConstraints() []UniqueConstraint
	Relations() []RelationDef
	DatetimeMirrors() []DatetimeMirror
	// Encode returns the full replacement document, excluding metadata
	// (the planner/scripts own metadata.version and metadata.schema).
	Encode() (json.RawMessage, error)
}

// Metadata is the reserved sub-object every stored document carries.
type Metadata struct {
	Version int `json:"version"`
	Schema  int `json:"schema"`
}

// IDSetter is an optional capability an Entity implements if it wants the
// planner to synthesize an id (spec.md §4.6 step 1) when ID() returns "".
// Types that always construct their own id need not implement it.
type IDSetter interface {
	SetID(id string)
}

// ValidationIssue names one failed validation rule at a field path
// (spec.md §4.6 step 5 / §7 "validation" error kind).
type ValidationIssue struct {
	FieldPath string
	Rule      string
}

// Validator is an optional capability an Entity implements to participate
// in the planner's pre-flight validation pass. Types with no declared
// rules need not implement it.
type Validator interface {
	Validate() []ValidationIssue
}
