package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/str11ngfello/snugom/config"
	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/errs"
	"github.com/str11ngfello/snugom/keys"
	"github.com/str11ngfello/snugom/script"
)

// Planner turns a Plan/DeletePlan into the ordered sequence of script
// invocations spec.md §4.6 describes. It is single-threaded per request;
// concurrent requests contend through script-level atomicity alone
// (spec.md §4.6 final paragraph).
type Planner struct {
	registry *entity.Registry
	schema   keys.Schema
	scripts  *script.Scripts
	cfg      config.Config
	now      func() time.Time
}

// New returns a Planner bound to a registry, key schema, and script
// dispatcher.
func New(registry *entity.Registry, schema keys.Schema, scripts *script.Scripts, cfg config.Config) *Planner {
	return &Planner{registry: registry, schema: schema, scripts: scripts, cfg: cfg, now: time.Now}
}

// Result is the outcome of executing a Plan's root mutation.
type Result struct {
	EntityID string
	Version  int
}

// Execute runs validation, id synthesis, and the ordered writes for plan,
// returning the root entity's resulting version (spec.md §4.6).
func (p *Planner) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	if err := validateTree(plan.Root); err != nil {
		return nil, err
	}
	if err := assignIDs(plan.Root); err != nil {
		return nil, err
	}

	res, err := p.writeNode(ctx, plan.Root, plan)
	if err != nil {
		return nil, err
	}
	if err := p.applyDeletes(ctx, plan.Root); err != nil {
		return nil, err
	}
	return res, nil
}

// writeNode writes one node's document (embedding its own relation
// add/connect/disconnect mutations in the same script call, per spec.md
// §4.6 rule 4), then recurses into nested creates as independent
// upsert_entity calls. rootPlan is non-nil only for the tree's root, since
// expected-version and idempotency apply only to the mutation the caller
// directly requested.
func (p *Planner) writeNode(ctx context.Context, n *Node, rootPlan *Plan) (*Result, error) {
	meta, ok := p.registry.Lookup(n.Entity.Service(), n.Entity.Collection())
	if !ok {
		return nil, unregisteredErr("plan.write", n.Entity.Service(), n.Entity.Collection())
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

	payload := script.UpsertEntityPayload{
		Key:               key,
		EntityID:          n.Entity.ID(),
		PayloadJSON:       payloadJSON,
		SchemaVersion:     meta.SchemaVersion,
		UniqueConstraints: buildUniqueConstraintsCreate(p.schema, meta, doc),
		DatetimeMirrors:   buildDatetimeMirrors(meta, doc),
		Relations:         p.buildOwnRelationMutations(meta, n),
	}

	if rootPlan != nil {
		if rootPlan.ExpectedVersion != nil {
			payload.HasExpectedVersion = true
			payload.ExpectedVersion = *rootPlan.ExpectedVersion
		}
		if rootPlan.IdempotencyKey != "" {
			payload.IdempotencyKey = rootPlan.IdempotencyKey
			payload.IdempotencyServiceKey = p.schema.IdempotencyService(meta.Service, rootPlan.IdempotencyKey)
			payload.HasIdempotencyTTL = true
			payload.IdempotencyTTL = p.resolveTTL(rootPlan.IdempotencyTTL)
		}
	}

	out, err := p.scripts.UpsertEntity(ctx, payload)
	if err != nil {
		return nil, err
	}

	for _, edit := range n.Relations() {
		for _, child := range edit.Creates {
			if _, err := p.writeNode(ctx, child, nil); err != nil {
				return nil, err
			}
		}
	}

	return &Result{EntityID: out.EntityID, Version: out.Version}, nil
}

// buildOwnRelationMutations computes the batched add/remove lists for
// every relation alias touched on n: add covers both nested creates (now
// that their ids are known, per spec.md §4.6 rule 1) and plain connects;
// remove covers disconnects. Delete directives are handled separately by
// applyDeletes, since they require their own delete_entity call.
func (p *Planner) buildOwnRelationMutations(meta entity.TypeMeta, n *Node) []script.RelationMutation {
	return buildRelationMutations(p.schema, meta.Service, n.Entity.ID(), relationDefsByAlias(meta), n.Relations())
}

// relationDefsByAlias indexes a type's declared relations by alias, for the
// RelationEdit → script.RelationMutation translation every write path needs.
func relationDefsByAlias(meta entity.TypeMeta) map[string]entity.RelationDef {
	out := make(map[string]entity.RelationDef, len(meta.Relations))
	for _, rel := range meta.Relations {
		out[rel.Alias] = rel
	}
	return out
}

// buildRelationMutations computes the batched add/remove lists for every
// relation edit attached to leftID. Shared by writeNode (via
// buildOwnRelationMutations), Planner.Patch, Planner.Upsert, and
// Planner.GetOrCreate — the same translation applies regardless of which
// script the result is ultimately embedded in.
func buildRelationMutations(schema keys.Schema, service, leftID string, relDefs map[string]entity.RelationDef, edits []*RelationEdit) []script.RelationMutation {
	var out []script.RelationMutation
	for _, edit := range edits {
		relDef, ok := relDefs[edit.Alias]
		if !ok {
			continue
		}
		add := make([]string, 0, len(edit.Creates)+len(edit.Connect))
		for _, child := range edit.Creates {
			add = append(add, child.Entity.ID())
		}
		add = append(add, edit.Connect...)
		if len(add) == 0 && len(edit.Disconnect) == 0 {
			continue
		}
		out = append(out, script.RelationMutation{
			RelationKey:     schema.Relation(service, edit.Alias, leftID),
			Add:             add,
			Remove:          edit.Disconnect,
			MaintainReverse: relDef.MaintainReverse,
		})
	}
	return out
}

// applyDeletes walks the tree a second time issuing delete_entity for
// every "delete id" directive, after the tree's own writes have completed.
func (p *Planner) applyDeletes(ctx context.Context, n *Node) error {
	meta, ok := p.registry.Lookup(n.Entity.Service(), n.Entity.Collection())
	if !ok {
		return unregisteredErr("plan.delete", n.Entity.Service(), n.Entity.Collection())
	}
	relDefs := make(map[string]entity.RelationDef, len(meta.Relations))
	for _, rel := range meta.Relations {
		relDefs[rel.Alias] = rel
	}

	for _, edit := range n.Relations() {
		relDef, ok := relDefs[edit.Alias]
		if !ok && len(edit.Delete) > 0 {
			return unregisteredErr("plan.delete", meta.Service, fmt.Sprintf("%s (relation %q)", meta.Collection, edit.Alias))
		}
		for _, targetID := range edit.Delete {
			if err := p.deleteRelationTarget(ctx, meta, relDef, targetID); err != nil {
				return err
			}
		}
		for _, child := range edit.Creates {
			if err := p.applyDeletes(ctx, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveTTL applies the planner's configured default when override is nil
// or negative; zero (never expire) and positive overrides pass through.
func (p *Planner) resolveTTL(override *int) int {
	if override != nil && *override >= 0 {
		return *override
	}
	return int(p.cfg.IdempotencyTTL / time.Second)
}

func marshalDoc(doc map[string]any) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errs.Wrap("plan.encode", err)
	}
	return b, nil
}
