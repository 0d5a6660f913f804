// Package pagination normalises page/limit pairs sent by clients.
package pagination

// Page clamps page to a minimum of 1.
func Page(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// Limit clamps limit to (0, maxLimit]; a non-positive limit means maxLimit.
func Limit(limit, maxLimit int) int {
	if limit <= 0 || limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Offset returns the number of rows to skip for an already normalised page and limit.
func Offset(page, limit int) int {
	return (page - 1) * limit
}

// TotalPages returns ceil(totalItems / limit).
func TotalPages(totalItems, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (totalItems + limit - 1) / limit
}

// Meta is embedded in paginated responses.
type Meta struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
}

// NewMeta builds the response metadata for a normalised page.
func NewMeta(page, limit, totalItems int) Meta {
	return Meta{
		CurrentPage: page,
		TotalPages:  TotalPages(totalItems, limit),
		TotalItems:  totalItems,
	}
}
