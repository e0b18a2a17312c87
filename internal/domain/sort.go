package domain

// SortDirection represents ordering direction for sortable fields.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortField is one requested ordering key, exactly as the client sent it.
type SortField struct {
	Field     string
	Direction string
}

// PageRange is a half-open [Start, End) window over a result set.
type PageRange struct {
	Start int
	End   int
}

// ListRequest bundles the read-side inputs for a kind.
type ListRequest struct {
	Sort        []SortField
	Range       *PageRange
	Filter      []FilterExpression
	ShowDeleted bool
}
