package planner

import (
	"context"
	"fmt"

	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/errs"
	"github.com/str11ngfello/snugom/keys"
	"github.com/str11ngfello/snugom/script"
)

func unregisteredErr(op, service, collection string) error {
	return errs.Internal(op, fmt.Errorf("entity %s/%s is not registered", service, collection))
}

// targetServiceOf resolves a RelationDef's target service, defaulting to
// the owner's own service when unset (spec.md §3).
func targetServiceOf(owner entity.TypeMeta, rel entity.RelationDef) string {
	if rel.TargetService != "" {
		return rel.TargetService
	}
	return owner.Service
}

// buildRelationSpecTree materializes the cascade relation tree delete_entity
// walks, reading registered metadata instead of runtime discovery
// (spec.md §4.6 rule 4). Only delete_dependents relations recurse into
// their target's own relations; detach_dependents and none relations stop
// at one level, matching delete_entity.lua. Every delete_dependents node
// also carries its own InboundRelations, since each one names an entity
// that is itself deleted by this cascade and whose own third-party
// back-links must be scrubbed too (spec.md §8.1 "cascade completeness").
func buildRelationSpecTree(meta entity.TypeMeta, registry *entity.Registry, schema keys.Schema) []script.RelationSpec {
	out := make([]script.RelationSpec, 0, len(meta.Relations))
	for _, rel := range meta.Relations {
		targetService := targetServiceOf(meta, rel)
		spec := script.RelationSpec{
			Alias:            rel.Alias,
			Cascade:          rel.Cascade.String(),
			MaintainReverse:  rel.MaintainReverse,
			TargetService:    targetService,
			TargetCollection: rel.TargetCollection,
		}
		if rel.Cascade == entity.CascadeDeleteDependents {
			spec.InboundRelations = toInboundPayload(registry.InboundRelations(targetService, rel.TargetCollection))
			if targetMeta, ok := registry.Lookup(targetService, rel.TargetCollection); ok {
				spec.UniqueConstraints = buildUniqueConstraintsRelease(schema, targetMeta)
				spec.Children = buildRelationSpecTree(targetMeta, registry, schema)
			}
		}
		out = append(out, spec)
	}
	return out
}

// toInboundPayload keeps only inbound links that maintain a reverse set —
// those are the only ones the scrub can locate (spec.md §4.3 step 5).
func toInboundPayload(links []entity.InboundLink) []script.InboundRelation {
	out := make([]script.InboundRelation, 0, len(links))
	for _, l := range links {
		if !l.MaintainReverse {
			continue
		}
		out = append(out, script.InboundRelation{OwningService: l.OwningService, Alias: l.Alias})
	}
	return out
}

// deletePayloadFor builds the full delete_entity envelope for one entity
// identified by coordinates, shared by both the top-level Delete entry
// point and in-plan "delete id" directives.
func (p *Planner) deletePayloadFor(service, collection, entityID string, expectedVersion *int) (script.DeleteEntityPayload, error) {
	meta, ok := p.registry.Lookup(service, collection)
	if !ok {
		return script.DeleteEntityPayload{}, unregisteredErr("plan.delete", service, collection)
	}
	payload := script.DeleteEntityPayload{
		Key:               p.schema.Entity(service, collection, entityID),
		Service:           service,
		Prefix:            p.schema.Prefix,
		UniqueConstraints: buildUniqueConstraintsRelease(p.schema, meta),
		Relations:         buildRelationSpecTree(meta, p.registry, p.schema),
		InboundRelations:  toInboundPayload(p.registry.InboundRelations(service, collection)),
	}
	if expectedVersion != nil {
		payload.HasExpectedVersion = true
		payload.ExpectedVersion = *expectedVersion
	}
	return payload, nil
}

// Delete runs a cascade delete for a standalone target (spec.md §4.3),
// outside any create/connect/disconnect plan tree.
func (p *Planner) Delete(ctx context.Context, target *DeletePlan) error {
	payload, err := p.deletePayloadFor(target.Service, target.Collection, target.EntityID, target.ExpectedVersion)
	if err != nil {
		return err
	}
	return p.scripts.DeleteEntity(ctx, payload)
}

// deleteRelationTarget services one "delete id" directive inside a plan
// tree: the target's type is resolved from the owning node's RelationDef,
// then deleted exactly as a standalone Delete would.
func (p *Planner) deleteRelationTarget(ctx context.Context, owner entity.TypeMeta, rel entity.RelationDef, targetID string) error {
	targetService := targetServiceOf(owner, rel)
	payload, err := p.deletePayloadFor(targetService, rel.TargetCollection, targetID, nil)
	if err != nil {
		return err
	}
	return p.scripts.DeleteEntity(ctx, payload)
}
