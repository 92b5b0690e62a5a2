package woocommerce

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ListOptions describe one list call against a remote resource
type ListOptions struct {
	PerPage int
	Offset  int
	Page    int

	// ModifiedAfter/Before filter on date_modified
	ModifiedAfter  *time.Time
	ModifiedBefore *time.Time
	// After/Before filter on date_created
	After  *time.Time
	Before *time.Time

	Search  string
	Status  string
	Include []int64
	OrderBy string
	Order   string

	// Fields projects the response to a subset via `_fields`. Records that
	// come back projected are summary-level.
	Fields []string
}

// IsProjected reports whether the options request a field projection
func (o ListOptions) IsProjected() bool {
	return len(o.Fields) > 0
}

// HasExactIDs reports whether the options pin down specific remote ids.
// Exact-id lookups bypass the list cache so fresh writes are never masked.
func (o ListOptions) HasExactIDs() bool {
	return len(o.Include) > 0
}

// Values renders the options as WooCommerce query parameters
func (o ListOptions) Values() url.Values {
	q := url.Values{}

	if o.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(o.PerPage))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}

	if o.ModifiedAfter != nil {
		q.Set("modified_after", o.ModifiedAfter.UTC().Format(DateFormat))
	}
	if o.ModifiedBefore != nil {
		q.Set("modified_before", o.ModifiedBefore.UTC().Format(DateFormat))
	}
	if o.After != nil {
		q.Set("after", o.After.UTC().Format(DateFormat))
	}
	if o.Before != nil {
		q.Set("before", o.Before.UTC().Format(DateFormat))
	}

	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.OrderBy != "" {
		q.Set("orderby", o.OrderBy)
	}
	if o.Order != "" {
		q.Set("order", o.Order)
	}

	if len(o.Include) > 0 {
		ids := make([]string, len(o.Include))
		for i, id := range o.Include {
			ids[i] = strconv.FormatInt(id, 10)
		}
		q.Set("include", strings.Join(ids, ","))
	}

	if len(o.Fields) > 0 {
		fields := append([]string(nil), o.Fields...)
		sort.Strings(fields)
		q.Set("_fields", strings.Join(fields, ","))
	}

	return q
}
