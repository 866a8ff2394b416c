// Package snugom is the public entry point for the mutation core: an ORM
// layer over a single-node JSON-and-search-capable key store, built on
// optimistic concurrency, idempotent retries, and server-side atomic
// scripts rather than client-side transactions.
//
// Most callers only need Open, Register, and a *Core's Execute/Delete/
// Compiler methods. The entity, planner, script, and search packages remain
// importable directly for callers building their own orchestration.
package snugom

import (
	"context"

	"github.com/str11ngfello/snugom/config"
	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/keys"
	"github.com/str11ngfello/snugom/planner"
	"github.com/str11ngfello/snugom/script"
	"github.com/str11ngfello/snugom/search"
)

// Core types for building typed entities and relation plans.
type (
	Entity           = entity.Entity
	IDSetter         = entity.IDSetter
	Validator        = entity.Validator
	IndexField       = entity.IndexField
	IndexType        = entity.IndexType
	UniqueConstraint = entity.UniqueConstraint
	RelationDef      = entity.RelationDef
	DatetimeMirror   = entity.DatetimeMirror
	CascadePolicy    = entity.CascadePolicy
)

// Index field type constants.
const (
	IndexTAG     = entity.IndexTAG
	IndexTEXT    = entity.IndexTEXT
	IndexNUMERIC = entity.IndexNUMERIC
)

// Cascade policy constants.
const (
	CascadeNone             = entity.CascadeNone
	CascadeDeleteDependents = entity.CascadeDeleteDependents
	CascadeDetachDependents = entity.CascadeDetachDependents
)

// Plan construction.
type (
	Node             = planner.Node
	Plan             = planner.Plan
	DeletePlan       = planner.DeletePlan
	Result           = planner.Result
	PatchPlan        = planner.PatchPlan
	PatchOp          = planner.PatchOp
	PatchOpType      = planner.PatchOpType
	PatchResult      = planner.PatchResult
	GetOrCreatePlan  = planner.GetOrCreatePlan
	GetOrCreateOutcome = planner.GetOrCreateOutcome
	UpsertPlan       = planner.UpsertPlan
	UpsertOutcome    = planner.UpsertOutcome
)

var (
	NewNode          = planner.NewNode
	NewPlan          = planner.NewPlan
	NewDeletePlan    = planner.NewDeletePlan
	NewPatchPlan     = planner.NewPatchPlan
	NewGetOrCreatePlan = planner.NewGetOrCreatePlan
	NewUpsertPlan    = planner.NewUpsertPlan
)

// Patch operation type constants.
const (
	OpAssign    = planner.OpAssign
	OpMerge     = planner.OpMerge
	OpDelete    = planner.OpDelete
	OpIncrement = planner.OpIncrement
)

// Search surface.
type (
	Filter        = search.Filter
	Operator      = search.Operator
	Query         = search.Query
	CompiledQuery = search.CompiledQuery
)

var ParseFilterString = search.ParseFilterString

// Config is the process-wide knob set (idempotency TTL, key prefix,
// strict-version-conflict default). Load resolves it from SNUGOM_* env vars.
type Config = config.Config

var LoadConfig = config.Load

// Core wires a registry, key schema, script dispatcher, and planner
// together into the single object most callers drive mutations through.
type Core struct {
	Registry *entity.Registry
	Schema   keys.Schema
	Scripts  *script.Scripts
	Planner  *planner.Planner
	cfg      config.Config
}

// Open builds a Core over store using cfg's key prefix and idempotency
// defaults. Callers register entity types on the returned Core's Registry
// before issuing any plan.
func Open(store script.Store, cfg config.Config) *Core {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "snugom"
	}
	reg := entity.NewRegistry()
	schema := keys.NewSchema(prefix)
	scripts := script.New(store)
	return &Core{
		Registry: reg,
		Schema:   schema,
		Scripts:  scripts,
		Planner:  planner.New(reg, schema, scripts, cfg),
		cfg:      cfg,
	}
}

// Register records an entity type's static metadata so the planner and
// search compiler can resolve its relations, unique constraints, and
// index fields without a live instance.
func (c *Core) Register(e entity.Entity) {
	c.Registry.Register(e)
}

// Execute runs plan's root mutation (and any nested creates/deletes it
// describes), returning the root entity's resulting id and version.
func (c *Core) Execute(ctx context.Context, plan *planner.Plan) (*planner.Result, error) {
	return c.Planner.Execute(ctx, plan)
}

// Delete removes a single entity (and, per its registered cascade policy,
// its dependents) identified by target.
func (c *Core) Delete(ctx context.Context, target *planner.DeletePlan) error {
	return c.Planner.Delete(ctx, target)
}

// Patch applies a partial-field update to an already-existing entity.
func (c *Core) Patch(ctx context.Context, plan *planner.PatchPlan) (*planner.PatchResult, error) {
	return c.Planner.Patch(ctx, plan)
}

// GetOrCreate returns the existing entity at plan's id, or creates it if
// absent.
func (c *Core) GetOrCreate(ctx context.Context, plan *planner.GetOrCreatePlan) (*planner.GetOrCreateOutcome, error) {
	return c.Planner.GetOrCreate(ctx, plan)
}

// Upsert updates an existing entity, or creates one under a (possibly
// distinct) id if the update target doesn't exist.
func (c *Core) Upsert(ctx context.Context, plan *planner.UpsertPlan) (*planner.UpsertOutcome, error) {
	return c.Planner.Upsert(ctx, plan)
}

// Compiler returns a search.Compiler bound to the registered index fields
// of (service, collection), for compiling filter queries against it.
func (c *Core) Compiler(service, collection string) (*search.Compiler, bool) {
	meta, ok := c.Registry.Lookup(service, collection)
	if !ok {
		return nil, false
	}
	return search.NewCompiler(search.NewFieldIndex(meta.IndexSpec)), true
}
