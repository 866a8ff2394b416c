package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/errs"
	"github.com/str11ngfello/snugom/script"
)

// onlyConnectDisconnect rejects Creates/Delete directives on a node passed
// to an existence-branching operation: the create branch of get_or_create
// and upsert issues a single script call, with no second pass to service
// nested creates or relation-target deletes the way writeNode/applyDeletes
// do for a full Plan tree.
func onlyConnectDisconnect(op string, n *Node) error {
	for _, edit := range n.Relations() {
		if len(edit.Creates) > 0 {
			return errs.Internal(op, fmt.Errorf("relation %q: nested creates are not supported here", edit.Alias))
		}
		if len(edit.Delete) > 0 {
			return errs.Internal(op, fmt.Errorf("relation %q: delete directives are not supported here", edit.Alias))
		}
	}
	return nil
}

// GetOrCreatePlan targets one entity for existence-branching create
// (spec.md §4.5): node carries the document to create if absent, plus any
// connect/disconnect directives to apply on that create.
type GetOrCreatePlan struct {
	Node *Node

	IdempotencyKey string
	IdempotencyTTL *int
}

// NewGetOrCreatePlan wraps node as the candidate to create if it does not
// already exist.
func NewGetOrCreatePlan(node *Node) *GetOrCreatePlan {
	return &GetOrCreatePlan{Node: node}
}

// WithIdempotencyKey makes the create branch replay-safe under key.
func (p *GetOrCreatePlan) WithIdempotencyKey(key string) *GetOrCreatePlan {
	p.IdempotencyKey = key
	return p
}

// WithIdempotencyTTL overrides the process-default idempotency TTL in
// seconds for this plan only.
func (p *GetOrCreatePlan) WithIdempotencyTTL(seconds int) *GetOrCreatePlan {
	p.IdempotencyTTL = &seconds
	return p
}

// GetOrCreateOutcome is the result of a successful Planner.GetOrCreate call.
type GetOrCreateOutcome struct {
	Branch   string // "found" or "created"
	Version  int
	EntityID string
	Entity   json.RawMessage
}

// GetOrCreate runs get_or_create (spec.md §4.5): returns the existing
// document unchanged if node's id is already taken, otherwise creates it.
func (p *Planner) GetOrCreate(ctx context.Context, plan *GetOrCreatePlan) (*GetOrCreateOutcome, error) {
	n := plan.Node
	if err := validateTree(n); err != nil {
		return nil, err
	}
	if err := onlyConnectDisconnect("plan.get_or_create", n); err != nil {
		return nil, err
	}
	if err := assignIDs(n); err != nil {
		return nil, err
	}

	meta, ok := p.registry.Lookup(n.Entity.Service(), n.Entity.Collection())
	if !ok {
		return nil, unregisteredErr("plan.get_or_create", n.Entity.Service(), n.Entity.Collection())
	}

	doc, err := decodeDoc(n.Entity)
	if err != nil {
		return nil, err
	}
	injectTimestamps(doc, meta, p.now())

	payloadJSON, err := marshalDoc(doc)
	if err != nil {
		return nil, err
	}

	key := p.schema.Entity(meta.Service, meta.Collection, n.Entity.ID())

	payload := script.GetOrCreatePayload{
		EntityKey:         key,
		EntityID:          n.Entity.ID(),
		CreatePayloadJSON: payloadJSON,
		SchemaVersion:     meta.SchemaVersion,
		UniqueConstraints: buildUniqueConstraintsCreate(p.schema, meta, doc),
		DatetimeMirrors:   buildDatetimeMirrors(meta, doc),
		Relations:         buildRelationMutations(p.schema, meta.Service, n.Entity.ID(), relationDefsByAlias(meta), n.Relations()),
	}
	if plan.IdempotencyKey != "" {
		payload.IdempotencyKey = plan.IdempotencyKey
		payload.IdempotencyServiceKey = p.schema.IdempotencyService(meta.Service, plan.IdempotencyKey)
		payload.HasIdempotencyTTL = true
		payload.IdempotencyTTL = p.resolveTTL(plan.IdempotencyTTL)
	}

	out, err := p.scripts.GetOrCreate(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &GetOrCreateOutcome{Branch: out.Branch, Version: out.Version, EntityID: out.EntityID, Entity: out.Entity}, nil
}

// UpsertPlan is a branch-select update-or-create request (spec.md §4.5,
// §8.3 scenario 4): UpdateEntityID names the natural-key-resolved id
// checked for existence, which may differ from CreateEntityID, the id used
// if the update branch doesn't fire. Node carries the create-branch
// document; its connect/disconnect edits are shared by both branches,
// applied against each branch's own left id.
type UpsertPlan struct {
	Service        string
	Collection     string
	UpdateEntityID string
	CreateEntityID string
	Node           *Node

	ops []PatchOp

	IdempotencyKey string
	IdempotencyTTL *int
}

// NewUpsertPlan targets updateEntityID for the update branch, falling back
// to creating node under its own id (synthesizing one via uuid.NewV7 if
// node's id is empty) when updateEntityID doesn't exist.
func NewUpsertPlan(service, collection, updateEntityID string, node *Node) *UpsertPlan {
	return &UpsertPlan{
		Service:        service,
		Collection:     collection,
		UpdateEntityID: updateEntityID,
		CreateEntityID: node.Entity.ID(),
		Node:           node,
	}
}

// WithCreateEntityID overrides the id used for the create branch, for
// callers whose update and create targets are resolved from distinct
// natural keys (spec.md §8.3 scenario 4).
func (p *UpsertPlan) WithCreateEntityID(id string) *UpsertPlan {
	p.CreateEntityID = id
	return p
}

// Assign replaces field's value wholesale on the update branch.
func (p *UpsertPlan) Assign(field string, value any) *UpsertPlan {
	p.ops = append(p.ops, PatchOp{Field: field, Type: OpAssign, Value: value})
	return p
}

// Merge deep-merges value into field on the update branch.
func (p *UpsertPlan) Merge(field string, value any) *UpsertPlan {
	p.ops = append(p.ops, PatchOp{Field: field, Type: OpMerge, Value: value})
	return p
}

// Increment adds delta to field's current numeric value on the update branch.
func (p *UpsertPlan) Increment(field string, delta float64) *UpsertPlan {
	p.ops = append(p.ops, PatchOp{Field: field, Type: OpIncrement, Delta: delta})
	return p
}

// WithIdempotencyKey makes either branch replay-safe under key, keyed off
// the update target (spec.md §4.5: "a single idempotency slot covers both
// branches").
func (p *UpsertPlan) WithIdempotencyKey(key string) *UpsertPlan {
	p.IdempotencyKey = key
	return p
}

// WithIdempotencyTTL overrides the process-default idempotency TTL in
// seconds for this plan only.
func (p *UpsertPlan) WithIdempotencyTTL(seconds int) *UpsertPlan {
	p.IdempotencyTTL = &seconds
	return p
}

// UpsertOutcome is the result of a successful Planner.Upsert call.
type UpsertOutcome struct {
	Branch   string // "updated" or "created"
	Version  int
	EntityID string
}

// Upsert runs the branching upsert script (spec.md §4.5).
func (p *Planner) Upsert(ctx context.Context, plan *UpsertPlan) (*UpsertOutcome, error) {
	n := plan.Node
	if err := validateTree(n); err != nil {
		return nil, err
	}
	if err := onlyConnectDisconnect("plan.upsert", n); err != nil {
		return nil, err
	}

	meta, ok := p.registry.Lookup(plan.Service, plan.Collection)
	if !ok {
		return nil, unregisteredErr("plan.upsert", plan.Service, plan.Collection)
	}

	createID := plan.CreateEntityID
	if createID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, errs.Internal("plan.upsert", err)
		}
		createID = id.String()
		if setter, ok := n.Entity.(entity.IDSetter); ok {
			setter.SetID(createID)
		}
	}

	updateOperations, assigned, err := buildPatchOperations(meta, plan.ops)
	if err != nil {
		return nil, err
	}

	doc, err := decodeDoc(n.Entity)
	if err != nil {
		return nil, err
	}
	injectTimestamps(doc, meta, p.now())

	payloadJSON, err := marshalDoc(doc)
	if err != nil {
		return nil, err
	}

	relDefs := relationDefsByAlias(meta)
	edits := n.Relations()

	payload := script.UpsertPayload{
		UpdateKey:               p.schema.Entity(plan.Service, plan.Collection, plan.UpdateEntityID),
		UpdateEntityID:          plan.UpdateEntityID,
		UpdateUniqueConstraints: buildPatchUniqueConstraints(p.schema, meta, assigned),
		UpdateOperations:        updateOperations,
		UpdateRelations:         buildRelationMutations(p.schema, plan.Service, plan.UpdateEntityID, relDefs, edits),
		CreateKey:               p.schema.Entity(plan.Service, plan.Collection, createID),
		CreateEntityID:          createID,
		CreatePayloadJSON:       payloadJSON,
		SchemaVersion:           meta.SchemaVersion,
		CreateUniqueConstraints: buildUniqueConstraintsCreate(p.schema, meta, doc),
		DatetimeMirrors:         buildDatetimeMirrors(meta, doc),
		CreateRelations:         buildRelationMutations(p.schema, plan.Service, createID, relDefs, edits),
	}
	if plan.IdempotencyKey != "" {
		payload.IdempotencyKey = plan.IdempotencyKey
		payload.IdempotencyEntityKey = p.schema.IdempotencyEntity(payload.UpdateKey, plan.IdempotencyKey)
		payload.HasIdempotencyTTL = true
		payload.IdempotencyTTL = p.resolveTTL(plan.IdempotencyTTL)
	}

	out, err := p.scripts.Upsert(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &UpsertOutcome{Branch: out.Branch, Version: out.Version, EntityID: out.EntityID}, nil
}
