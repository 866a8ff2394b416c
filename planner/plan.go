package planner

// Plan is one mutation request: a root node plus per-operation options
// (spec.md §4.6 "Input").
type Plan struct {
	Root            *Node
	ExpectedVersion *int
	IdempotencyKey  string
	IdempotencyTTL  *int // nil means use the process default
}

// NewPlan wraps root as the subject of a create/upsert/patch plan.
func NewPlan(root *Node) *Plan {
	return &Plan{Root: root}
}

// WithExpectedVersion sets the optimistic-concurrency guard for the root
// entity's own mutation.
func (p *Plan) WithExpectedVersion(v int) *Plan {
	p.ExpectedVersion = &v
	return p
}

// WithIdempotencyKey makes the plan's root mutation replay-safe under key.
func (p *Plan) WithIdempotencyKey(key string) *Plan {
	p.IdempotencyKey = key
	return p
}

// WithIdempotencyTTL overrides the process-default idempotency TTL in
// seconds for this plan only. Zero means never expire (spec.md §9).
func (p *Plan) WithIdempotencyTTL(seconds int) *Plan {
	p.IdempotencyTTL = &seconds
	return p
}

// DeletePlan is a standalone delete request: the root is identified by key
// coordinates rather than an encoded entity, since a delete has no payload
// document (spec.md §4.3).
type DeletePlan struct {
	Service         string
	Collection      string
	EntityID        string
	ExpectedVersion *int
}

// NewDeletePlan targets one entity for cascade deletion.
func NewDeletePlan(service, collection, entityID string) *DeletePlan {
	return &DeletePlan{Service: service, Collection: collection, EntityID: entityID}
}

// WithExpectedVersion sets the optimistic-concurrency guard on the delete.
func (p *DeletePlan) WithExpectedVersion(v int) *DeletePlan {
	p.ExpectedVersion = &v
	return p
}
