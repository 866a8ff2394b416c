package entity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlTypeMeta mirrors TypeMeta in a form convenient to hand-author as
// YAML, for schemas that don't want a hand-written Entity impl per type.
type yamlTypeMeta struct {
	Service    string `yaml:"service"`
	Collection string `yaml:"collection"`
	IDField    string `yaml:"id_field"`
	Schema     int    `yaml:"schema"`
	Index      []struct {
		Path       string `yaml:"path"`
		Alias      string `yaml:"alias"`
		Type       string `yaml:"type"`
		Searchable bool   `yaml:"searchable"`
		Sortable   bool   `yaml:"sortable"`
	} `yaml:"index"`
	Unique []struct {
		Fields          []string `yaml:"fields"`
		CaseInsensitive bool     `yaml:"case_insensitive"`
	} `yaml:"unique"`
	Relations []struct {
		Alias            string `yaml:"alias"`
		TargetService    string `yaml:"target_service"`
		TargetCollection string `yaml:"target_collection"`
		Cascade          string `yaml:"cascade"`
		MaintainReverse  bool   `yaml:"maintain_reverse"`
	} `yaml:"relations"`
	DatetimeMirrors []struct {
		SourceField string `yaml:"source_field"`
		MirrorField string `yaml:"mirror_field"`
	} `yaml:"datetime_mirrors"`
}

type yamlDoc struct {
	Entities []yamlTypeMeta `yaml:"entities"`
}

// LoadRegistryYAML parses a YAML document describing one or more entity
// types and registers each against r. This is an alternative to calling
// Register per hand-written Entity impl, for schemas simple enough to be
// fully declarative.
func LoadRegistryYAML(r *Registry, data []byte) error {
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("entity: parse registry yaml: %w", err)
	}
	for _, y := range doc.Entities {
		m, err := y.toTypeMeta()
		if err != nil {
			return fmt.Errorf("entity: %s/%s: %w", y.Service, y.Collection, err)
		}
		r.RegisterMeta(m)
	}
	return nil
}

// LoadRegistryYAMLFile reads path and loads it via LoadRegistryYAML.
func LoadRegistryYAMLFile(r *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("entity: read registry yaml %s: %w", path, err)
	}
	return LoadRegistryYAML(r, data)
}

func (y yamlTypeMeta) toTypeMeta() (TypeMeta, error) {
	m := TypeMeta{
		Service:       y.Service,
		Collection:    y.Collection,
		IDField:       y.IDField,
		SchemaVersion: y.Schema,
	}
	if m.Service == "" || m.Collection == "" {
		return TypeMeta{}, fmt.Errorf("service and collection are required")
	}

	for _, idx := range y.Index {
		var t IndexType
		switch idx.Type {
		case "TAG":
			t = IndexTAG
		case "TEXT":
			t = IndexTEXT
		case "NUMERIC":
			t = IndexNUMERIC
		default:
			return TypeMeta{}, fmt.Errorf("field %s: unknown index type %q", idx.Alias, idx.Type)
		}
		m.IndexSpec = append(m.IndexSpec, IndexField{
			Path:       idx.Path,
			Alias:      idx.Alias,
			Type:       t,
			Searchable: idx.Searchable,
			Sortable:   idx.Sortable,
		})
	}

	for _, u := range y.Unique {
		if len(u.Fields) == 0 {
			return TypeMeta{}, fmt.Errorf("unique constraint with no fields")
		}
		m.UniqueConstraints = append(m.UniqueConstraints, UniqueConstraint{
			Fields:          u.Fields,
			CaseInsensitive: u.CaseInsensitive,
		})
	}

	for _, rel := range y.Relations {
		var c CascadePolicy
		switch rel.Cascade {
		case "delete_dependents":
			c = CascadeDeleteDependents
		case "detach_dependents":
			c = CascadeDetachDependents
		case "none", "":
			c = CascadeNone
		default:
			return TypeMeta{}, fmt.Errorf("relation %s: unknown cascade %q", rel.Alias, rel.Cascade)
		}
		m.Relations = append(m.Relations, RelationDef{
			Alias:            rel.Alias,
			TargetService:    rel.TargetService,
			TargetCollection: rel.TargetCollection,
			Cascade:          c,
			MaintainReverse:  rel.MaintainReverse,
		})
	}

	for _, dm := range y.DatetimeMirrors {
		m.DatetimeMirrors = append(m.DatetimeMirrors, DatetimeMirror{
			SourceField: dm.SourceField,
			MirrorField: dm.MirrorField,
		})
	}

	return m, nil
}
