package domain

import "sort"

// Products is the generic inventory product kind.
var Products = NewKind("product", "products", "products_history", "product_id", []Field{
	{Name: "name", Type: FieldTypeText, Filterable: true, Sortable: true, Searchable: true},
	{Name: "description", Type: FieldTypeText, Nullable: true, Filterable: true, Sortable: true, Searchable: true},
	{Name: "quantity", Type: FieldTypeInteger, Filterable: true, Sortable: true},
})

// Lenses is the optical lens kind.
var Lenses = NewKind("lens", "lenses", "lenses_history", "lens_id", []Field{
	{Name: "lens_type", Type: FieldTypeText, Filterable: true, Sortable: true, Searchable: true},
	{Name: "sphere", Type: FieldTypeDecimal, Precision: 4, Scale: 2, Filterable: true, Sortable: true},
	{Name: "cylinder", Type: FieldTypeDecimal, Precision: 4, Scale: 2, Filterable: true, Sortable: true},
	{Name: "unit_price", Type: FieldTypeDecimal, Precision: 5, Scale: 2, Filterable: true, Sortable: true},
	{Name: "quantity", Type: FieldTypeInteger, Filterable: true, Sortable: true, Default: int64(0)},
	{Name: "storage_limit", Type: FieldTypeInteger, Nullable: true, Filterable: true, Sortable: true},
	{Name: "comment", Type: FieldTypeText, Nullable: true, Filterable: true, Sortable: true, Searchable: true},
})

// Registry maps the URL resource names to kinds.
type Registry map[string]*Kind

// DefaultRegistry holds every kind the service exposes.
func DefaultRegistry() Registry {
	return Registry{
		"products": Products,
		"lenses":   Lenses,
	}
}

// Resources lists the registered resource names in stable order.
func (r Registry) Resources() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
