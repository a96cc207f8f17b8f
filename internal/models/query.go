package models

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// ErrInvalidQuery is returned when admin list parameters cannot be honored.
var ErrInvalidQuery = errors.New("invalid list query")

const (
	// DefaultListLimit is the page size used when none is requested.
	DefaultListLimit = 20
	// MaxListLimit is the largest page size accepted.
	MaxListLimit = 100

	// FieldStoreDataID is the name of the derived store data identifier field.
	FieldStoreDataID = "store_data_id"
)

// ListFields are the columns shown in the admin list view.
var ListFields = []string{"biz_id", "city", "status", FieldStoreDataID, "timestamp", "store_id"}

// SearchableFields are matched against the free text search term.
var SearchableFields = []string{"biz_id", "city", "status", "store_id", FieldStoreDataID}

// SortableFields are the fields a listing can be ordered by.
var SortableFields = []string{"timestamp", "biz_id", "city", "status", FieldStoreDataID}

// FieldPath returns the stored document path backing a field name.
func FieldPath(field string) string {
	if field == FieldStoreDataID {
		return "data.store.id"
	}
	return field
}

// ListQuery describes an admin listing: free text search, store data filter, ordering and paging.
type ListQuery struct {
	Search      string
	StoreDataID string

	// Sort is empty for natural order.
	Sort       string
	Descending bool

	Skip  int64
	Limit int64
}

// ParseListQuery reads a ListQuery from URL query parameters and validates it.
//
// Recognized parameters are q, store_data_id, sort (prefix "-" for descending), skip and limit.
func ParseListQuery(values url.Values) (ListQuery, error) {
	q := ListQuery{
		Search:      strings.TrimSpace(values.Get("q")),
		StoreDataID: strings.TrimSpace(values.Get(FieldStoreDataID)),
		Limit:       DefaultListLimit,
	}

	if s := strings.TrimSpace(values.Get("sort")); s != "" {
		q.Sort, q.Descending = strings.CutPrefix(s, "-")
		if q.Sort == "" {
			return ListQuery{}, fmt.Errorf("%w: empty sort field", ErrInvalidQuery)
		}
	}

	var err error
	if v := values.Get("skip"); v != "" {
		if q.Skip, err = strconv.ParseInt(v, 10, 64); err != nil {
			return ListQuery{}, fmt.Errorf("%w: skip %q is not a number", ErrInvalidQuery, v)
		}
	}
	if v := values.Get("limit"); v != "" {
		if q.Limit, err = strconv.ParseInt(v, 10, 64); err != nil {
			return ListQuery{}, fmt.Errorf("%w: limit %q is not a number", ErrInvalidQuery, v)
		}
	}

	if err := q.Validate(); err != nil {
		return ListQuery{}, err
	}
	return q, nil
}

// Validate checks the sort field and paging bounds.
func (q ListQuery) Validate() error {
	if q.Sort != "" && !slices.Contains(SortableFields, q.Sort) {
		return fmt.Errorf("%w: cannot sort by %q", ErrInvalidQuery, q.Sort)
	}
	if q.Skip < 0 {
		return fmt.Errorf("%w: skip must not be negative", ErrInvalidQuery)
	}
	if q.Limit < 1 || q.Limit > MaxListLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, MaxListLimit)
	}
	return nil
}

// Values encodes the query back into URL parameters, omitting defaults.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	if q.StoreDataID != "" {
		v.Set(FieldStoreDataID, q.StoreDataID)
	}
	if q.Sort != "" {
		s := q.Sort
		if q.Descending {
			s = "-" + s
		}
		v.Set("sort", s)
	}
	if q.Skip != 0 {
		v.Set("skip", strconv.FormatInt(q.Skip, 10))
	}
	if q.Limit != DefaultListLimit {
		v.Set("limit", strconv.FormatInt(q.Limit, 10))
	}
	return v
}

// Matches evaluates the search and store data filters against a record.
// Only string values take part, as with the database regex and equality operators.
func (q ListQuery) Matches(r AggregatorRecord) bool {
	if q.StoreDataID != "" {
		id, ok := r.Data.LookupString("store", "id")
		if !ok || id != q.StoreDataID {
			return false
		}
	}

	if q.Search == "" {
		return true
	}
	fold := cases.Fold()
	term := fold.String(q.Search)
	for _, f := range SearchableFields {
		s, ok := r.Field(f).(string)
		if !ok {
			continue
		}
		if strings.Contains(fold.String(s), term) {
			return true
		}
	}
	return false
}

// Field returns the raw value of a named field, nil when absent.
func (r AggregatorRecord) Field(name string) any {
	switch name {
	case "biz_id":
		return r.BizID
	case "city":
		return r.City
	case "message":
		return r.Message
	case "status":
		return r.Status
	case "store_id":
		return r.StoreID
	case "timestamp":
		return r.Timestamp
	case FieldStoreDataID:
		v, _ := r.Data.Lookup("store", "id")
		return v
	}
	return nil
}
