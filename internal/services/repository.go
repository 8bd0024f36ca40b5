// Package services holds the repositories shared between the monitoring
// engine and the HTTP API.
package services

import "errors"

// Page size bounds for list queries.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// ListOptions controls pagination and ordering. SortBy names a column from
// the repository's sortable set; anything else falls back to its default.
type ListOptions struct {
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string // "asc" or "desc" (default)
}

// ListResult is one page of items plus the total matching count.
type ListResult[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Sentinel errors returned by repositories.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

func (o ListOptions) normalized() ListOptions {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultPageSize
	case o.Limit > MaxPageSize:
		o.Limit = MaxPageSize
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.SortOrder != "asc" {
		o.SortOrder = "desc"
	}
	return o
}

// orderBy returns the ORDER BY expression for o. sortable maps accepted
// SortBy values to column names; only its values ever reach the query.
func (o ListOptions) orderBy(sortable map[string]string, def string) string {
	col, ok := sortable[o.SortBy]
	if !ok {
		col = def
	}
	dir := "DESC"
	if o.SortOrder == "asc" {
		dir = "ASC"
	}
	return col + " " + dir + ", id ASC"
}
