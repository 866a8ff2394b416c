package planner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/errs"
	"github.com/str11ngfello/snugom/keys"
	"github.com/str11ngfello/snugom/script"
)

const rfc3339 = time.RFC3339

// decodeDoc unmarshals an entity's encoded document into a plain map so the
// planner can inspect and inject fields before the script call.
func decodeDoc(e entity.Entity) (map[string]any, error) {
	raw, err := e.Encode()
	if err != nil {
		return nil, errs.Wrap("plan.encode", err)
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errs.Wrap("plan.encode", fmt.Errorf("%w: %v", errs.ErrInvalidPayload, err))
	}
	return doc, nil
}

// injectTimestamps populates created_at (only when absent, i.e. this is a
// fresh document) and always refreshes updated_at, using the current wall
// clock (spec.md §4.6 rule 2). Only fields the type actually declares a
// datetime mirror for are touched.
func injectTimestamps(doc map[string]any, meta entity.TypeMeta, now time.Time) {
	declared := make(map[string]bool, len(meta.DatetimeMirrors))
	for _, dm := range meta.DatetimeMirrors {
		declared[dm.SourceField] = true
	}
	stamp := now.UTC().Format(rfc3339)
	if declared["created_at"] {
		if v, ok := doc["created_at"]; !ok || v == nil || v == "" {
			doc["created_at"] = stamp
		}
	}
	if declared["updated_at"] {
		doc["updated_at"] = stamp
	}
}

// buildDatetimeMirrors computes the {mirror_field, value, present} triples
// for every mirror the type declares, reading the source field's current
// value from doc.
func buildDatetimeMirrors(meta entity.TypeMeta, doc map[string]any) []script.DatetimeMirror {
	out := make([]script.DatetimeMirror, 0, len(meta.DatetimeMirrors))
	for _, dm := range meta.DatetimeMirrors {
		v, ok := doc[dm.SourceField]
		if !ok || v == nil {
			out = append(out, script.DatetimeMirror{MirrorField: dm.MirrorField, Present: false})
			continue
		}
		s, ok := v.(string)
		if !ok {
			out = append(out, script.DatetimeMirror{MirrorField: dm.MirrorField, Present: false})
			continue
		}
		t, err := time.Parse(rfc3339, s)
		if err != nil {
			out = append(out, script.DatetimeMirror{MirrorField: dm.MirrorField, Present: false})
			continue
		}
		out = append(out, script.DatetimeMirror{
			MirrorField: dm.MirrorField,
			Value:       strconv.FormatInt(t.Unix(), 10),
			Present:     true,
		})
	}
	return out
}

// fieldValue reads a field's current value from doc as a string, reporting
// absence for spec.md's "null disables enforcement" rule.
func fieldValue(doc map[string]any, field string) (string, bool) {
	v, ok := doc[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// buildUniqueConstraintsCreate evaluates every declared unique constraint
// against doc, computing the hash key and lookup components
// (spec.md §3.1).
func buildUniqueConstraintsCreate(schema keys.Schema, meta entity.TypeMeta, doc map[string]any) []script.UniqueConstraintCreate {
	out := make([]script.UniqueConstraintCreate, 0, len(meta.UniqueConstraints))
	for _, uc := range meta.UniqueConstraints {
		values := make([]string, len(uc.Fields))
		present := make([]bool, len(uc.Fields))
		for i, f := range uc.Fields {
			values[i], present[i] = fieldValue(doc, f)
		}
		out = append(out, script.UniqueConstraintCreate{
			Fields:          uc.Fields,
			HashKey:         schema.UniqueHashFor(meta.Service, meta.Collection, uc.Fields),
			Values:          values,
			Present:         present,
			CaseInsensitive: uc.CaseInsensitive,
		})
	}
	return out
}

// buildUniqueConstraintsRelease is the delete-time shape: every registered
// constraint, regardless of whether it currently holds a live reservation
// (SPEC_FULL.md §9 Open Question resolution, option (a)).
func buildUniqueConstraintsRelease(schema keys.Schema, meta entity.TypeMeta) []script.UniqueConstraintRelease {
	out := make([]script.UniqueConstraintRelease, 0, len(meta.UniqueConstraints))
	for _, uc := range meta.UniqueConstraints {
		out = append(out, script.UniqueConstraintRelease{
			Fields:          uc.Fields,
			HashKey:         schema.UniqueHashFor(meta.Service, meta.Collection, uc.Fields),
			CaseInsensitive: uc.CaseInsensitive,
		})
	}
	return out
}
