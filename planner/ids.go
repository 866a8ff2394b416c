package planner

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/str11ngfello/snugom/entity"
	"github.com/str11ngfello/snugom/errs"
)

// assignIDs synthesizes version-7 time-ordered ids for every node in the
// tree whose entity has no id yet (spec.md §4.6 rule 1). A node without an
// id and without entity.IDSetter is a programmer error: the type must
// either construct its own id or opt into planner synthesis.
func assignIDs(n *Node) error {
	if n.Entity.ID() == "" {
		setter, ok := n.Entity.(entity.IDSetter)
		if !ok {
			return errs.Internal("plan.assign_id", fmt.Errorf("%s/%s: entity has no id and does not implement entity.IDSetter",
				n.Entity.Service(), n.Entity.Collection()))
		}
		id, err := uuid.NewV7()
		if err != nil {
			return errs.Internal("plan.assign_id", err)
		}
		setter.SetID(id.String())
	}
	for _, edit := range n.Relations() {
		for _, child := range edit.Creates {
			if err := assignIDs(child); err != nil {
				return err
			}
		}
	}
	return nil
}
