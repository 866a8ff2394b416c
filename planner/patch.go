package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/errs"
	"github.com/str11ngfello/snugom/keys"
	"github.com/str11ngfello/snugom/script"
)

// PatchOpType names one of the four field-level mutations patch_entity and
// the update branch of upsert accept (spec.md §4.2).
type PatchOpType string

const (
	OpAssign    PatchOpType = "assign"
	OpMerge     PatchOpType = "merge"
	OpDelete    PatchOpType = "delete"
	OpIncrement PatchOpType = "increment"
)

// PatchOp is one operation against a single dotted field path (not
// "$."-prefixed; the planner adds that prefix when building the script
// payload, matching entity.UniqueConstraint.Fields' convention).
type PatchOp struct {
	Field string
	Type  PatchOpType
	Value any     // assign/merge: the new value, JSON-encoded by the planner
	Delta float64 // increment: the amount to add
}

// toPath turns a dotted field name into the JSON path patch_entity.lua
// expects for JSON.SET/JSON.MERGE/JSON.DEL/JSON.NUMINCRBY.
func toPath(field string) string { return "$." + field }

// PatchPlan is a partial-field update request against one already-existing
// entity (spec.md §4.2), plus any relation edits to batch into the same
// script call.
type PatchPlan struct {
	Service    string
	Collection string
	EntityID   string

	ops        []PatchOp
	connect    map[string][]string
	disconnect map[string][]string
	order      []string

	ExpectedVersion       *int
	IdempotencyKey        string
	IdempotencyTTL        *int
	StrictVersionConflict *bool
}

// NewPatchPlan targets one existing entity for a partial update.
func NewPatchPlan(service, collection, entityID string) *PatchPlan {
	return &PatchPlan{
		Service:    service,
		Collection: collection,
		EntityID:   entityID,
		connect:    make(map[string][]string),
		disconnect: make(map[string][]string),
	}
}

// Assign replaces field's value wholesale.
func (p *PatchPlan) Assign(field string, value any) *PatchPlan {
	p.ops = append(p.ops, PatchOp{Field: field, Type: OpAssign, Value: value})
	return p
}

// Merge deep-merges value into field via JSON.MERGE (RFC 7396 semantics).
func (p *PatchPlan) Merge(field string, value any) *PatchPlan {
	p.ops = append(p.ops, PatchOp{Field: field, Type: OpMerge, Value: value})
	return p
}

// DeleteField removes field from the document entirely.
func (p *PatchPlan) DeleteField(field string) *PatchPlan {
	p.ops = append(p.ops, PatchOp{Field: field, Type: OpDelete})
	return p
}

// Increment adds delta to field's current numeric value via JSON.NUMINCRBY.
func (p *PatchPlan) Increment(field string, delta float64) *PatchPlan {
	p.ops = append(p.ops, PatchOp{Field: field, Type: OpIncrement, Delta: delta})
	return p
}

func (p *PatchPlan) track(alias string) {
	for _, a := range p.order {
		if a == alias {
			return
		}
	}
	p.order = append(p.order, alias)
}

// Connect adds targetID to the alias relation without touching the target
// document.
func (p *PatchPlan) Connect(alias, targetID string) *PatchPlan {
	p.track(alias)
	p.connect[alias] = append(p.connect[alias], targetID)
	return p
}

// Disconnect removes targetID from the alias relation without touching the
// target document.
func (p *PatchPlan) Disconnect(alias, targetID string) *PatchPlan {
	p.track(alias)
	p.disconnect[alias] = append(p.disconnect[alias], targetID)
	return p
}

// WithExpectedVersion sets the optimistic-concurrency guard.
func (p *PatchPlan) WithExpectedVersion(v int) *PatchPlan {
	p.ExpectedVersion = &v
	return p
}

// WithIdempotencyKey makes this patch replay-safe under key.
func (p *PatchPlan) WithIdempotencyKey(key string) *PatchPlan {
	p.IdempotencyKey = key
	return p
}

// WithIdempotencyTTL overrides the process-default idempotency TTL in
// seconds for this plan only.
func (p *PatchPlan) WithIdempotencyTTL(seconds int) *PatchPlan {
	p.IdempotencyTTL = &seconds
	return p
}

// WithStrictVersionConflict overrides config.Config.StrictVersionConflict
// for this plan only (spec.md §9 Open Question resolution).
func (p *PatchPlan) WithStrictVersionConflict(strict bool) *PatchPlan {
	p.StrictVersionConflict = &strict
	return p
}

// edits materializes the accumulated connect/disconnect directives as
// RelationEdits, in deterministic alias order, for buildRelationMutations.
func (p *PatchPlan) edits() []*RelationEdit {
	out := make([]*RelationEdit, 0, len(p.order))
	aliases := append([]string(nil), p.order...)
	sort.Strings(aliases)
	for _, alias := range aliases {
		out = append(out, &RelationEdit{Alias: alias, Connect: p.connect[alias], Disconnect: p.disconnect[alias]})
	}
	return out
}

// PatchResult is the outcome of a successful Planner.Patch call. Version is
// nil when the patch was a documented no-op (spec.md §4.2).
type PatchResult struct {
	EntityID string
	Version  *int
}

// buildOperationMirror reports the datetime mirror update an assign/merge
// operation against a mirrored source field must carry alongside it
// (spec.md §4.2 step 8: mirrors stay in sync with every write, not only
// whole-document upserts).
func buildOperationMirror(meta entity.TypeMeta, field string, opType PatchOpType, value any) *script.DatetimeMirror {
	if opType != OpAssign && opType != OpMerge {
		return nil
	}
	for _, dm := range meta.DatetimeMirrors {
		if dm.SourceField != field {
			continue
		}
		s, ok := value.(string)
		if !ok {
			return &script.DatetimeMirror{MirrorField: dm.MirrorField, Present: false}
		}
		t, err := time.Parse(rfc3339, s)
		if err != nil {
			return &script.DatetimeMirror{MirrorField: dm.MirrorField, Present: false}
		}
		return &script.DatetimeMirror{
			MirrorField: dm.MirrorField,
			Value:       strconv.FormatInt(t.Unix(), 10),
			Present:     true,
		}
	}
	return nil
}

// buildPatchOperations translates PatchOps into script.Operations, and
// tracks the subset of unique-constraint fields an assign touches so
// buildPatchUniqueConstraints can tell patch_entity.lua what new value to
// compare against. Only assign's literal value is known client-side before
// the script runs; merge/delete/increment leave the field's new lookup
// value for patch_entity.lua itself to discover against the live document.
func buildPatchOperations(meta entity.TypeMeta, ops []PatchOp) ([]script.Operation, map[string]string, error) {
	out := make([]script.Operation, 0, len(ops))
	assigned := make(map[string]string, len(ops))
	for _, op := range ops {
		so := script.Operation{
			Type:   string(op.Type),
			Path:   toPath(op.Field),
			Mirror: buildOperationMirror(meta, op.Field, op.Type, op.Value),
		}
		switch op.Type {
		case OpAssign, OpMerge:
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return nil, nil, errs.Wrap("plan.patch", fmt.Errorf("%w: %v", errs.ErrInvalidPayload, err))
			}
			so.ValueJSON = raw
			if op.Type == OpAssign {
				if s, ok := op.Value.(string); ok {
					assigned[op.Field] = s
				} else {
					assigned[op.Field] = string(raw)
				}
			}
		case OpIncrement:
			so.Value = op.Delta
		case OpDelete:
			// no value payload
		default:
			return nil, nil, errs.Wrap("plan.patch", fmt.Errorf("%w: %q", errs.ErrUnknownOperation, op.Type))
		}
		out = append(out, so)
	}
	return out, assigned, nil
}

// buildPatchUniqueConstraints evaluates every declared unique constraint
// against assigned field values, deferring fields the caller didn't touch
// with an assign to patch_entity.lua's own old-vs-new comparison.
func buildPatchUniqueConstraints(schema keys.Schema, meta entity.TypeMeta, assigned map[string]string) []script.UniqueConstraintPatch {
	out := make([]script.UniqueConstraintPatch, 0, len(meta.UniqueConstraints))
	for _, uc := range meta.UniqueConstraints {
		newValues := make([]string, len(uc.Fields))
		newPresent := make([]bool, len(uc.Fields))
		touched := false
		for i, f := range uc.Fields {
			if v, ok := assigned[f]; ok {
				newValues[i] = v
				newPresent[i] = true
				touched = true
			}
		}
		if !touched {
			continue
		}
		out = append(out, script.UniqueConstraintPatch{
			Fields:          uc.Fields,
			HashKey:         schema.UniqueHashFor(meta.Service, meta.Collection, uc.Fields),
			NewValues:       newValues,
			NewPresent:      newPresent,
			CaseInsensitive: uc.CaseInsensitive,
		})
	}
	return out
}

// resolveStrict applies the planner's configured default when override is nil.
func (p *Planner) resolveStrict(override *bool) bool {
	if override != nil {
		return *override
	}
	return p.cfg.StrictVersionConflict
}

// Patch runs patch_entity for an already-existing target (spec.md §4.2).
func (p *Planner) Patch(ctx context.Context, plan *PatchPlan) (*PatchResult, error) {
	meta, ok := p.registry.Lookup(plan.Service, plan.Collection)
	if !ok {
		return nil, unregisteredErr("plan.patch", plan.Service, plan.Collection)
	}

	operations, assigned, err := buildPatchOperations(meta, plan.ops)
	if err != nil {
		return nil, err
	}

	payload := script.PatchEntityPayload{
		Key:                   p.schema.Entity(plan.Service, plan.Collection, plan.EntityID),
		EntityID:              plan.EntityID,
		Operations:            operations,
		Relations:             buildRelationMutations(p.schema, plan.Service, plan.EntityID, relationDefsByAlias(meta), plan.edits()),
		UniqueConstraints:     buildPatchUniqueConstraints(p.schema, meta, assigned),
		StrictVersionConflict: p.resolveStrict(plan.StrictVersionConflict),
	}

	if plan.ExpectedVersion != nil {
		payload.HasExpectedVersion = true
		payload.ExpectedVersion = *plan.ExpectedVersion
	}
	if plan.IdempotencyKey != "" {
		payload.IdempotencyKey = plan.IdempotencyKey
		payload.IdempotencyEntityKey = p.schema.IdempotencyEntity(payload.Key, plan.IdempotencyKey)
		payload.IdempotencyServiceKey = p.schema.IdempotencyService(plan.Service, plan.IdempotencyKey)
		payload.HasIdempotencyTTL = true
		payload.IdempotencyTTL = p.resolveTTL(plan.IdempotencyTTL)
	}

	out, err := p.scripts.PatchEntity(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &PatchResult{EntityID: out.EntityID, Version: out.Version}, nil
}
