package option

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aware88/fresh-crm/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type queryOptionFunc func(stmt *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(stmt *gorm.DB) *gorm.DB {
	return f(stmt)
}

type Operator string

const (
	EQ   Operator = "="
	NEQ  Operator = "<>"
	GT   Operator = ">"
	GTE  Operator = ">="
	LT   Operator = "<"
	LTE  Operator = "<="
	LIKE Operator = "LIKE"
)

// Condition expresses a single field comparison.
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ApplyOperator adds a WHERE clause for the condition. Unknown fields or
// operators are ignored rather than interpolated into SQL.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		field := strings.ToLower(strings.TrimSpace(cond.Field))
		if !identPattern.MatchString(field) {
			return stmt
		}
		switch cond.Operator {
		case EQ, NEQ, GT, GTE, LT, LTE, LIKE:
			return stmt.Where(fmt.Sprintf("%s %s ?", field, cond.Operator), cond.Value)
		default:
			return stmt
		}
	})
}

// QuerySortBy describes a requested ordering constrained to allowed columns.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// WithQuerySortBy builds a QuerySortBy from raw request values.
func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{
		SortBy:  sortBy,
		OrderBy: orderBy,
		Allow:   allow,
	}
}

// WithSortBy orders by the requested column when allowed, falling back to created_at desc.
func WithSortBy(q QuerySortBy) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		column := strings.ToLower(strings.TrimSpace(q.SortBy))
		if column == "" || !q.Allow[column] || !identPattern.MatchString(column) {
			column = "created_at"
		}
		direction := "desc"
		if strings.EqualFold(strings.TrimSpace(q.OrderBy), "asc") {
			direction = "asc"
		}
		return stmt.Order(fmt.Sprintf("%s %s", column, direction))
	})
}

// ApplyPagination applies cursor pagination. One extra row is fetched so
// callers can detect whether more pages exist.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 10
		}
		if size > 250 {
			size = 250
		}

		if token := strings.TrimSpace(page.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil && cursor != nil && cursor.CreatedAt != "" && cursor.ID != "" {
				stmt = stmt.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
			}
		}

		return stmt.Limit(size + 1)
	})
}
