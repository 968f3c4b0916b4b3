// Package records is a small table/filter/payload store over the storefront
// tables. Callers address rows by table name and equality filters and get
// back column maps; typed adapters live in the packages that own each table.
package records

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

const (
	TableProducts   = "products"
	TableProfiles   = "profiles"
	TableOrders     = "orders"
	TableOrderItems = "order_items"
)

var (
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrUnknownTable    = errors.New("unknown table")
	ErrInvalidColumn   = errors.New("invalid column name")
	ErrEmptyPayload    = errors.New("empty payload")
	// ErrUnfilteredUpdate guards against rewriting a whole table.
	ErrUnfilteredUpdate = errors.New("update without filter")
)

// Row is one record keyed by column name.
type Row map[string]any

// Filter matches rows whose columns equal every given value. A nil value
// matches NULL.
type Filter map[string]any

type Ordering struct {
	Column     string
	Descending bool
}

func Asc(column string) Ordering  { return Ordering{Column: column} }
func Desc(column string) Ordering { return Ordering{Column: column, Descending: true} }

type Store interface {
	Select(ctx context.Context, table string, filter Filter, order ...Ordering) ([]Row, error)
	// Insert writes one row and returns it as stored.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// InsertMany writes all rows in a single statement: either every row is
	// stored or none is.
	InsertMany(ctx context.Context, table string, rows []Row) ([]Row, error)
	// Update sets values on every row matching filter and reports how many
	// rows were touched.
	Update(ctx context.Context, table string, filter Filter, values Row) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	tables = map[string]bool{
		TableProducts:   true,
		TableProfiles:   true,
		TableOrders:     true,
		TableOrderItems: true,
	}
	identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

func checkTable(table string) error {
	if !tables[table] {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return nil
}

func checkColumn(column string) error {
	if !identPattern.MatchString(column) {
		return fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}
	return nil
}
