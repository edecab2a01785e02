package handlers

import (
	"fmt"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/shipyard/internal/db/models"
)

const (
	// MinPageSize is the minimum allowed page size
	MinPageSize = 1
	// MaxPageSize is the maximum allowed page size
	MaxPageSize = 1000
)

// getListOptions reads limit, offset and status from the query string
func getListOptions(c *fiber.Ctx) (*models.ListOptions, error) {
	opts := &models.ListOptions{
		Limit:  c.QueryInt("limit", models.DefaultLimit),
		Offset: c.QueryInt("offset", 0),
	}
	if opts.Limit < MinPageSize || opts.Limit > MaxPageSize {
		return nil, fmt.Errorf("limit must be between %d and %d", MinPageSize, MaxPageSize)
	}
	if opts.Offset < 0 {
		return nil, fmt.Errorf("offset cannot be negative")
	}

	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseJobStatus(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ErrMsgInvalidJobStatus, err)
		}
		opts.Status = &status
	}
	return opts, nil
}

// paramID reads a positive integer path parameter
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s %s", name, ErrMsgInvalidID)
	}
	return uint(id), nil
}

// queryID reads an optional positive integer query parameter, zero when absent
func queryID(c *fiber.Ctx, name string) (uint, error) {
	if c.Query(name) == "" {
		return 0, nil
	}
	id := c.QueryInt(name, -1)
	if id <= 0 {
		return 0, fmt.Errorf("%s %s", name, ErrMsgInvalidID)
	}
	return uint(id), nil
}

// rowPointers converts the rows returned by a repository for a list response
func rowPointers[T any](rows []T) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}
