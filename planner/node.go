// Package planner implements the mutation planner (spec.md §4.6): it
// turns a declarative tree of create/connect/disconnect/delete directives
// into an ordered sequence of script invocations.
package planner

import "github.com/str11ngfello/snugom/entity"

// Node is one entity instance in a plan tree, plus the directives that
// apply to its relations.
type Node struct {
	Entity    entity.Entity
	relations map[string]*RelationEdit
	order     []string // alias insertion order, for deterministic plan output
}

// RelationEdit accumulates the directives declared against one relation
// alias on a Node (spec.md §4.6: "create T | connect id | disconnect id |
// delete id").
type RelationEdit struct {
	Alias      string
	Creates    []*Node
	Connect    []string
	Disconnect []string
	Delete     []string
}

// NewNode wraps an entity instance as the root (or a nested child) of a plan.
func NewNode(e entity.Entity) *Node {
	return &Node{Entity: e, relations: make(map[string]*RelationEdit)}
}

func (n *Node) edit(alias string) *RelationEdit {
	e, ok := n.relations[alias]
	if !ok {
		e = &RelationEdit{Alias: alias}
		n.relations[alias] = e
		n.order = append(n.order, alias)
	}
	return e
}

// Create attaches a nested create directive under alias. child may itself
// carry further nested directives, satisfying arbitrarily deep creation
// trees (spec.md §4.6 rule 4, "parent must be written first").
func (n *Node) Create(alias string, child *Node) *Node {
	e := n.edit(alias)
	e.Creates = append(e.Creates, child)
	return n
}

// Connect attaches a connect directive: add targetID to the relation
// without touching the target document.
func (n *Node) Connect(alias, targetID string) *Node {
	e := n.edit(alias)
	e.Connect = append(e.Connect, targetID)
	return n
}

// Disconnect attaches a disconnect directive: remove targetID from the
// relation without touching the target document (spec.md §4.6 rule 4,
// "only relation sets are touched").
func (n *Node) Disconnect(alias, targetID string) *Node {
	e := n.edit(alias)
	e.Disconnect = append(e.Disconnect, targetID)
	return n
}

// Delete attaches a delete directive: the target is recursively deleted via
// its own delete_entity call. Its id leaves this relation's forward set only
// when the relation maintains a reverse set (delete_entity's inbound
// back-link scrub); otherwise the forward set keeps the id.
func (n *Node) Delete(alias, targetID string) *Node {
	e := n.edit(alias)
	e.Delete = append(e.Delete, targetID)
	return n
}

// Relations returns the accumulated edits in declaration order.
func (n *Node) Relations() []*RelationEdit {
	out := make([]*RelationEdit, 0, len(n.order))
	for _, alias := range n.order {
		out = append(out, n.relations[alias])
	}
	return out
}
