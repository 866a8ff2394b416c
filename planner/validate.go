package planner

import (
	"fmt"

	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/errs"
)

// validateTree runs every node's optional Validator (spec.md §4.6 rule 5)
// and returns the first failure found, depth-first, or nil.
func validateTree(n *Node) error {
	if v, ok := n.Entity.(entity.Validator); ok {
		for _, issue := range v.Validate() {
			return errs.Wrap("plan.validate", &errs.ValidationError{FieldPath: issue.FieldPath, Rule: issue.Rule})
		}
	}
	for _, edit := range n.Relations() {
		for _, child := range edit.Creates {
			if err := validateTree(child); err != nil {
				return fmt.Errorf("relation %q: %w", edit.Alias, err)
			}
		}
	}
	return nil
}
