package registry

import (
	"fmt"
	"sort"
)

// FieldType is the storage value type of a canonical field.
type FieldType string

const (
	FieldTypeText      FieldType = "TEXT"
	FieldTypeTextArray FieldType = "TEXT_ARRAY"
	FieldTypeInteger   FieldType = "INTEGER"
	FieldTypeFloat     FieldType = "FLOAT"
	FieldTypeTimestamp FieldType = "TIMESTAMP"
	FieldTypeUUID      FieldType = "UUID"
	FieldTypeVector    FieldType = "VECTOR"
)

// Join describes the single LEFT JOIN needed to reach a side table.
// Every joined table declares exactly one join key back to the base
// table's primary key.
type Join struct {
	Table   string
	Alias   string
	JoinKey string
}

// FieldDefinition maps a canonical field name to its storage location.
// Join is nil for fields on the base table.
type FieldDefinition struct {
	Name   string
	Column string
	Type   FieldType
	Join   *Join
}

// QualifiedColumn returns the alias-qualified column reference for use in
// generated SQL.
func (f FieldDefinition) QualifiedColumn(baseAlias string) string {
	if f.Join != nil {
		return f.Join.Alias + "." + f.Column
	}
	return baseAlias + "." + f.Column
}

// Registry is the immutable canonical-field catalog. Built once at
// process start and safe for concurrent reads without locking.
type Registry struct {
	baseTable  string
	baseAlias  string
	primaryKey string
	fields     map[string]FieldDefinition
	ordered    []string
}

// New builds a registry from field definitions. Duplicate canonical
// names and conflicting join declarations for the same table are
// construction errors.
func New(baseTable, baseAlias, primaryKey string, defs []FieldDefinition) (*Registry, error) {
	fields := make(map[string]FieldDefinition, len(defs))
	ordered := make([]string, 0, len(defs))
	joins := make(map[string]Join)

	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("field definition with empty canonical name")
		}
		if _, exists := fields[def.Name]; exists {
			return nil, fmt.Errorf("duplicate canonical field name %q", def.Name)
		}
		if def.Join != nil {
			if prior, seen := joins[def.Join.Table]; seen && prior != *def.Join {
				return nil, fmt.Errorf("conflicting join declarations for table %q", def.Join.Table)
			}
			joins[def.Join.Table] = *def.Join
		}
		fields[def.Name] = def
		ordered = append(ordered, def.Name)
	}

	if _, ok := fields[primaryKey]; !ok {
		return nil, fmt.Errorf("primary key field %q not defined", primaryKey)
	}

	return &Registry{
		baseTable:  baseTable,
		baseAlias:  baseAlias,
		primaryKey: primaryKey,
		fields:     fields,
		ordered:    ordered,
	}, nil
}

// BaseTable returns the primary entity table name.
func (r *Registry) BaseTable() string {
	return r.baseTable
}

// BaseAlias returns the alias used for the base table in generated SQL.
func (r *Registry) BaseAlias() string {
	return r.baseAlias
}

// PrimaryKey returns the canonical name of the primary key field.
func (r *Registry) PrimaryKey() string {
	return r.primaryKey
}

// PrimaryKeyColumn returns the alias-qualified primary key column.
func (r *Registry) PrimaryKeyColumn() string {
	return r.fields[r.primaryKey].QualifiedColumn(r.baseAlias)
}

// Lookup resolves a canonical field name.
func (r *Registry) Lookup(name string) (FieldDefinition, bool) {
	def, ok := r.fields[name]
	return def, ok
}

// Has reports whether a canonical field name is defined.
func (r *Registry) Has(name string) bool {
	_, ok := r.fields[name]
	return ok
}

// Names returns all canonical field names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	copy(names, r.ordered)
	return names
}

// JoinsFor returns the deduplicated joins needed to reach every field in
// names, ordered by table name so generated SQL is stable. Unknown names
// are ignored; callers validate before building.
func (r *Registry) JoinsFor(names []string) []Join {
	byTable := make(map[string]Join)
	for _, name := range names {
		def, ok := r.fields[name]
		if !ok || def.Join == nil {
			continue
		}
		byTable[def.Join.Table] = *def.Join
	}

	tables := make([]string, 0, len(byTable))
	for table := range byTable {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	joins := make([]Join, 0, len(tables))
	for _, table := range tables {
		joins = append(joins, byTable[table])
	}
	return joins
}
