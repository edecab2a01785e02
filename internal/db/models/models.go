// Package models contains the GORM models persisted by shipyard
package models

const (
	// DefaultLimit is the max number of rows that are retrieved from the DB per listing API call
	DefaultLimit = 50
)

// ListOptions represents pagination and filtering options for list operations
type ListOptions struct {
	Limit  int        `json:"limit"`            // Number of items to return
	Offset int        `json:"offset"`           // Number of items to skip
	Status *JobStatus `json:"status,omitempty"` // Filter by job status
}

// limit returns the effective limit for a query
func (o *ListOptions) limit() int {
	if o == nil || o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

// offset returns the effective offset for a query
func (o *ListOptions) offset() int {
	if o == nil || o.Offset < 0 {
		return 0
	}
	return o.Offset
}

// Page returns the limit and offset to apply to a query
func (o *ListOptions) Page() (limit, offset int) {
	return o.limit(), o.offset()
}
