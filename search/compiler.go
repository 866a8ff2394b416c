package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/str11ngfello/snugom/entity"
)

// FieldIndex maps an index field's alias onto its declared type, built
// from an entity.Entity's IndexSpec().
type FieldIndex map[string]entity.IndexType

// NewFieldIndex builds a FieldIndex from an entity's declared index fields.
func NewFieldIndex(fields []entity.IndexField) FieldIndex {
	idx := make(FieldIndex, len(fields))
	for _, f := range fields {
		idx[f.Alias] = f.Type
	}
	return idx
}

// CompiledQuery is the store-native search invocation (spec.md §4.7 "Output").
type CompiledQuery struct {
	QueryString string
	SortBy      string
	SortOrder   string
	Offset      int
	Limit       int
}

// Compiler compiles Filter/Query values against one entity type's field index.
type Compiler struct {
	fields FieldIndex
}

// NewCompiler builds a Compiler bound to the given index.
func NewCompiler(fields FieldIndex) *Compiler {
	return &Compiler{fields: fields}
}

// CompileFilter renders one filter's query fragment. Multiple "|"-delimited
// values within f.Value OR-combine (spec.md §4.7 "Combination"). eq on a
// TAG field is the one operator with a documented single-clause multi-value
// form (spec.md §4.7: `@field:{v1|v2}`), since RediSearch's own TAG syntax
// already expresses an OR natively inside one clause; every other operator
// falls back to OR-ing separate per-value clauses together.
func (c *Compiler) CompileFilter(f Filter) (string, error) {
	typ, ok := c.fields[f.Field]
	if !ok {
		return "", fmt.Errorf("search: field %q is not indexed", f.Field)
	}

	values := strings.Split(f.Value, "|")

	if f.Operator == OpEq && typ == entity.IndexTAG {
		escaped := make([]string, len(values))
		for i, v := range values {
			escaped[i] = EscapeTag(v)
		}
		return fmt.Sprintf("@%s:{%s}", f.Field, strings.Join(escaped, "|")), nil
	}

	fragments := make([]string, 0, len(values))
	for _, v := range values {
		frag, err := c.compileOne(f.Field, typ, f.Operator, v)
		if err != nil {
			return "", err
		}
		fragments = append(fragments, frag)
	}
	if len(fragments) == 1 {
		return fragments[0], nil
	}
	return "(" + strings.Join(fragments, " | ") + ")", nil
}

func (c *Compiler) compileOne(field string, typ entity.IndexType, op Operator, value string) (string, error) {
	switch op {
	case OpEq:
		if typ == entity.IndexTEXT {
			return c.compileOne(field, typ, OpPrefix, value)
		}
		return fmt.Sprintf("@%s:{%s}", field, EscapeTag(value)), nil

	case OpRange:
		lo, hi, err := splitRange(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s:[%s %s]", field, lo, hi), nil

	case OpBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", fmt.Errorf("search: field %q: %w", field, err)
		}
		return fmt.Sprintf("@%s:{%s}", field, strconv.FormatBool(b)), nil

	case OpPrefix:
		tokens := tokenize(value)
		if len(tokens) == 0 {
			return "", fmt.Errorf("search: field %q: empty prefix value", field)
		}
		for i, tok := range tokens {
			tokens[i] = EscapeTextOperator(tok)
		}
		tokens[len(tokens)-1] += "*"
		return fmt.Sprintf("@%s:(%s)", field, strings.Join(tokens, " ")), nil

	case OpContains:
		return fmt.Sprintf("@%s:*%s*", field, EscapeTextOperator(value)), nil

	case OpExact:
		return fmt.Sprintf("@%s:\"%s\"", field, EscapePhrase(value)), nil

	case OpFuzzy:
		return fmt.Sprintf("@%s:%%%s%%", field, EscapeTextOperator(value)), nil

	default:
		return "", fmt.Errorf("search: unsupported operator %q for field %q", op, field)
	}
}

func splitRange(value string) (lo, hi string, err error) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("search: malformed range %q, want \"lo,hi\"", value)
	}
	lo, hi = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if lo == "" {
		lo = "-inf"
	}
	if hi == "" {
		hi = "+inf"
	}
	return lo, hi, nil
}

// Compile renders a full Query into the store's FT.SEARCH invocation.
// Filter entries combine with AND (spec.md §4.7 "Combination").
func (c *Compiler) Compile(q Query) (CompiledQuery, error) {
	var clauses []string
	if q.Q != "" {
		clauses = append(clauses, q.Q)
	}
	for _, raw := range q.Filter {
		f, err := ParseFilterString(raw)
		if err != nil {
			return CompiledQuery{}, err
		}
		frag, err := c.CompileFilter(f)
		if err != nil {
			return CompiledQuery{}, err
		}
		clauses = append(clauses, frag)
	}

	queryString := "*"
	if len(clauses) > 0 {
		queryString = strings.Join(clauses, " ")
	}

	page, pageSize := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	sortOrder := strings.ToUpper(q.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	return CompiledQuery{
		QueryString: queryString,
		SortBy:      q.SortBy,
		SortOrder:   sortOrder,
		Offset:      (page - 1) * pageSize,
		Limit:       pageSize,
	}, nil
}
