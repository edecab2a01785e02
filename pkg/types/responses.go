package types

// PaginationResponse represents pagination information for list endpoints
type PaginationResponse struct {
	// Number of rows in this page
	Total int `json:"total"`
	// Maximum number of rows per page
	Limit int `json:"limit"`
	// Number of rows skipped from the beginning of the result set
	Offset int `json:"offset"`
}

// ListResponse defines a generic response structure for listing resources
type ListResponse[T any] struct {
	Rows       []*T               `json:"rows"`
	Pagination PaginationResponse `json:"pagination"`
}

// NewListResponse wraps rows fetched with the given limit and offset
func NewListResponse[T any](rows []*T, limit, offset int) ListResponse[T] {
	if rows == nil {
		rows = []*T{}
	}
	return ListResponse[T]{
		Rows: rows,
		Pagination: PaginationResponse{
			Total:  len(rows),
			Limit:  limit,
			Offset: offset,
		},
	}
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status           string `json:"status"`
	ActiveExecutions int    `json:"active_executions"`
}
