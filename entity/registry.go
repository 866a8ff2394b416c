package entity

import (
	"fmt"
	"sync"
)

// TypeMeta is the registry-stored shape of an Entity's static metadata,
// independent of any particular instance (no ID, no encoded payload).
// The planner consults it to materialize delete-time relation-spec trees
// without runtime discovery against the store (spec.md §4.6 rule 2).
type TypeMeta struct {
	Service           string
	Collection        string
	IDField           string
	SchemaVersion     int
	IndexSpec         []IndexField
	UniqueConstraints []UniqueConstraint
	Relations         []RelationDef
	DatetimeMirrors   []DatetimeMirror
}

// Registry maps a collection name to its static type metadata. One
// Registry is typically built once at process startup and shared by the
// planner and search compiler.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeMeta
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]TypeMeta)}
}

// Register records the static metadata for a collection, keyed by
// "service/collection". A hand-written call per type satisfies the
// "typed derive machinery" contract from the design notes; no code
// generation is required by the core.
func (r *Registry) Register(e Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[key(e.Service(), e.Collection())] = TypeMeta{
		Service:           e.Service(),
		Collection:        e.Collection(),
		IDField:           e.IDField(),
		SchemaVersion:     e.SchemaVersion(),
		IndexSpec:         e.IndexSpec(),
		UniqueConstraints: e.UniqueConstraints(),
		Relations:         e.Relations(),
		DatetimeMirrors:   e.DatetimeMirrors(),
	}
}

// RegisterMeta records static metadata directly, bypassing an Entity
// instance. Used by the YAML loader and by tests.
func (r *Registry) RegisterMeta(m TypeMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[key(m.Service, m.Collection)] = m
}

// Lookup returns the registered metadata for a service/collection pair.
func (r *Registry) Lookup(service, collection string) (TypeMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.types[key(service, collection)]
	return m, ok
}

// MustLookup is Lookup but panics on a missing type, for use during plan
// construction where an unregistered type is a programmer error, not a
// runtime condition to recover from.
func (r *Registry) MustLookup(service, collection string) TypeMeta {
	m, ok := r.Lookup(service, collection)
	if !ok {
		panic(fmt.Sprintf("snugom: entity %s/%s is not registered", service, collection))
	}
	return m
}

// InboundLink names a relation declared on some other registered type that
// points at a given target collection.
type InboundLink struct {
	OwningService    string
	OwningCollection string
	Alias            string
	MaintainReverse  bool
}

// InboundRelations scans every registered type for relations that target
// (targetService, targetCollection), resolving the RelationDef's
// TargetService default ("" means same service as the owner). The planner
// calls it for the delete root and for every delete_dependents node of the
// cascade tree, so delete_entity.lua scrubs inbound back-links for each
// entity it deletes (spec.md §4.3 step 5).
func (r *Registry) InboundRelations(targetService, targetCollection string) []InboundLink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []InboundLink
	for _, m := range r.types {
		for _, rel := range m.Relations {
			owningTargetService := rel.TargetService
			if owningTargetService == "" {
				owningTargetService = m.Service
			}
			if owningTargetService == targetService && rel.TargetCollection == targetCollection {
				out = append(out, InboundLink{
					OwningService:    m.Service,
					OwningCollection: m.Collection,
					Alias:            rel.Alias,
					MaintainReverse:  rel.MaintainReverse,
				})
			}
		}
	}
	return out
}

func key(service, collection string) string { return service + "/" + collection }
