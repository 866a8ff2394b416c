package script

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/str11ngfello/snugom/errs"
)

//go:embed lua/lib.lua
var libSource string

//go:embed lua/upsert_entity.lua
var upsertEntitySource string

//go:embed lua/patch_entity.lua
var patchEntitySource string

//go:embed lua/delete_entity.lua
var deleteEntitySource string

//go:embed lua/mutate_relations.lua
var mutateRelationsSource string

//go:embed lua/get_or_create.lua
var getOrCreateSource string

//go:embed lua/upsert.lua
var upsertSource string

// scriptTracer is the OTel tracer for script-dispatch spans. It uses the
// global provider, a no-op until the host process installs a real one.
var scriptTracer = otel.Tracer("github.com/str11ngfello/snugom/script")

// scriptMetrics holds the OTel instruments every dispatch updates.
var scriptMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/str11ngfello/snugom/script")
	scriptMetrics.calls, _ = m.Int64Counter("snugom.script.calls",
		metric.WithDescription("Transaction script invocations"),
		metric.WithUnit("{call}"),
	)
	scriptMetrics.failures, _ = m.Int64Counter("snugom.script.failures",
		metric.WithDescription("Transaction script invocations that returned a typed error"),
		metric.WithUnit("{call}"),
	)
	scriptMetrics.latency, _ = m.Float64Histogram("snugom.script.latency_ms",
		metric.WithDescription("Round-trip latency of a transaction script invocation"),
		metric.WithUnit("ms"),
	)
}

// Scripts dispatches the six fixed transaction scripts over a Store. Each
// script is a checked-in Lua program; no arbitrary user code is ever
// passed to EVAL (spec.md's Non-goals).
type Scripts struct {
	store Store

	upsertEntity     *redis.Script
	patchEntity      *redis.Script
	deleteEntity     *redis.Script
	mutateRelations  *redis.Script
	getOrCreate      *redis.Script
	upsert           *redis.Script
}

// New returns a Scripts dispatcher bound to store. The Lua sources are
// assembled once at call time (lib.lua prepended to each operation body);
// go-redis handles EVALSHA-with-NOSCRIPT-fallback transparently.
func New(store Store) *Scripts {
	return &Scripts{
		store:           store,
		upsertEntity:    redis.NewScript(libSource + upsertEntitySource),
		patchEntity:     redis.NewScript(libSource + patchEntitySource),
		deleteEntity:    redis.NewScript(libSource + deleteEntitySource),
		mutateRelations: redis.NewScript(libSource + mutateRelationsSource),
		getOrCreate:     redis.NewScript(libSource + getOrCreateSource),
		upsert:          redis.NewScript(libSource + upsertSource),
	}
}

// run executes script under op with envelopeKey as the sole ARGV[1] top
// key wrapping payload, recording a trace span and the call/failure/latency
// metrics, and returns the decoded reply.
func (s *Scripts) run(ctx context.Context, op string, sc *redis.Script, envelopeKey string, payload any) (reply, error) {
	var r reply

	envelope := map[string]any{envelopeKey: payload}
	argv, err := json.Marshal(envelope)
	if err != nil {
		return r, errs.Wrap(op, fmt.Errorf("%w: %v", errs.ErrInvalidPayload, err))
	}

	ctx, span := scriptTracer.Start(ctx, "snugom.script."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("snugom.op", op)),
	)
	defer span.End()

	scriptMetrics.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("snugom.op", op)))

	start := time.Now()
	raw, err := sc.Run(ctx, s.store, nil, string(argv)).Result()
	scriptMetrics.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
		metric.WithAttributes(attribute.String("snugom.op", op)))
	if err != nil {
		scriptMetrics.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("snugom.op", op)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r, errs.Internal(op, err)
	}

	rawStr, ok := raw.(string)
	if !ok {
		return r, errs.Internal(op, fmt.Errorf("unexpected script reply type %T", raw))
	}
	if err := json.Unmarshal([]byte(rawStr), &r); err != nil {
		return r, errs.Internal(op, err)
	}

	if r.Error != "" {
		scriptMetrics.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("snugom.op", op)))
		span.SetStatus(codes.Error, r.Error)
		return r, replyToErr(op, r)
	}
	return r, nil
}

// replyToErr maps a script's {"error": ...} reply onto the errs taxonomy.
func replyToErr(op string, r reply) error {
	switch r.Error {
	case "entity_not_found":
		return errs.Wrap(op, errs.ErrEntityNotFound)
	case "version_conflict":
		return errs.Wrap(op, &errs.VersionConflictError{Expected: r.Expected, Actual: r.Actual})
	case "unique_constraint_violation":
		return errs.Wrap(op, &errs.UniqueConstraintViolationError{
			Fields:           r.Fields,
			Values:           r.Values,
			ExistingEntityID: r.ExistingEntityID,
		})
	case "unknown_operation":
		return errs.Wrap(op, fmt.Errorf("%w: op_type %q", errs.ErrUnknownOperation, r.OpType))
	default:
		return errs.Internal(op, fmt.Errorf("unrecognized script error kind %q", r.Error))
	}
}

// UpsertResult is the successful reply of UpsertEntity, PatchEntity, and
// the update branch of Upsert.
type UpsertResult struct {
	Version         int
	EntityID        string
	DatetimeMirrors []DatetimeMirror
}

// UpsertEntity runs upsert_entity (spec.md §4.1).
func (s *Scripts) UpsertEntity(ctx context.Context, p UpsertEntityPayload) (UpsertResult, error) {
	r, err := s.run(ctx, "upsert_entity", s.upsertEntity, "upsert_entity", p)
	if err != nil {
		return UpsertResult{}, err
	}
	v := 0
	if r.Version != nil {
		v = *r.Version
	}
	return UpsertResult{Version: v, EntityID: r.EntityID, DatetimeMirrors: r.DatetimeMirrors}, nil
}

// PatchResult is the successful reply of PatchEntity. Version is nil when
// the patch was a documented no-op (spec.md §4.2: empty operations and
// relations).
type PatchResult struct {
	Version  *int
	EntityID string
}

// PatchEntity runs patch_entity (spec.md §4.2).
func (s *Scripts) PatchEntity(ctx context.Context, p PatchEntityPayload) (PatchResult, error) {
	r, err := s.run(ctx, "patch_entity", s.patchEntity, "patch_entity", p)
	if err != nil {
		return PatchResult{}, err
	}
	return PatchResult{Version: r.Version, EntityID: r.EntityID}, nil
}

// DeleteEntity runs delete_entity (spec.md §4.3).
func (s *Scripts) DeleteEntity(ctx context.Context, p DeleteEntityPayload) error {
	_, err := s.run(ctx, "delete_entity", s.deleteEntity, "delete_entity", p)
	return err
}

// MutateRelations runs the standalone relation_mutation command
// (spec.md §4.4).
func (s *Scripts) MutateRelations(ctx context.Context, p RelationMutation) error {
	_, err := s.run(ctx, "mutate_relations", s.mutateRelations, "mutate_relations", p)
	return err
}

// GetOrCreateResult is the successful reply of GetOrCreate.
type GetOrCreateResult struct {
	Branch   string // "found" or "created"
	Version  int
	EntityID string
	Entity   json.RawMessage
}

// GetOrCreate runs get_or_create (spec.md §4.5).
func (s *Scripts) GetOrCreate(ctx context.Context, p GetOrCreatePayload) (GetOrCreateResult, error) {
	r, err := s.run(ctx, "get_or_create", s.getOrCreate, "get_or_create", p)
	if err != nil {
		return GetOrCreateResult{}, err
	}
	v := 0
	if r.Version != nil {
		v = *r.Version
	}
	return GetOrCreateResult{Branch: r.Branch, Version: v, EntityID: r.EntityID, Entity: r.Entity}, nil
}

// UpsertBranchResult is the successful reply of Upsert.
type UpsertBranchResult struct {
	Branch   string // "updated" or "created"
	Version  int
	EntityID string
}

// Upsert runs the branching upsert script (spec.md §4.5).
func (s *Scripts) Upsert(ctx context.Context, p UpsertPayload) (UpsertBranchResult, error) {
	r, err := s.run(ctx, "upsert", s.upsert, "upsert", p)
	if err != nil {
		return UpsertBranchResult{}, err
	}
	v := 0
	if r.Version != nil {
		v = *r.Version
	}
	return UpsertBranchResult{Branch: r.Branch, Version: v, EntityID: r.EntityID}, nil
}
