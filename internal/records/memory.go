package records

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// uniqueColumns mirrors the unique constraints of the SQL schema.
var uniqueColumns = map[string][]string{
	TableProducts:   {"id"},
	TableProfiles:   {"id", "email"},
	TableOrders:     {"id", "transaction_id"},
	TableOrderItems: {"id"},
}

// MemoryStore implements Store in process memory. Rows come back in insert
// order unless an ordering is given.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]Row),
	}
}

func (s *MemoryStore) Select(_ context.Context, table string, filter Filter, order ...Ordering) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	for _, o := range order {
		if err := checkColumn(o.Column); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Row
	for _, r := range s.tables[table] {
		if matches(r, filter) {
			out = append(out, copyRow(r))
		}
	}

	if len(order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range order {
				c := compare(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	out, err := s.InsertMany(ctx, table, []Row{row})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (s *MemoryStore) InsertMany(_ context.Context, table string, rows []Row) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make([]Row, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 {
			return nil, ErrEmptyPayload
		}
		for c := range r {
			if err := checkColumn(c); err != nil {
				return nil, err
			}
		}
		stored := normalizeRow(r)
		if s.conflicts(table, stored, staged) {
			return nil, fmt.Errorf("insert %s: %w", table, ErrUniqueViolation)
		}
		staged = append(staged, stored)
	}

	s.tables[table] = append(s.tables[table], staged...)

	out := make([]Row, len(staged))
	for i, r := range staged {
		out[i] = copyRow(r)
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, table string, filter Filter, values Row) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, ErrEmptyPayload
	}
	if len(filter) == 0 {
		return 0, ErrUnfilteredUpdate
	}
	for c := range values {
		if err := checkColumn(c); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.tables[table] {
		if !matches(r, filter) {
			continue
		}
		for c, v := range normalizeRow(values) {
			r[c] = v
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("memory store closed")
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) conflicts(table string, row Row, staged []Row) bool {
	for _, c := range uniqueColumns[table] {
		v, ok := row[c]
		if !ok || v == nil {
			continue
		}
		for _, existing := range s.tables[table] {
			if existing[c] != nil && compare(existing[c], v) == 0 {
				return true
			}
		}
		for _, existing := range staged {
			if existing[c] != nil && compare(existing[c], v) == 0 {
				return true
			}
		}
	}
	return false
}

func matches(r Row, filter Filter) bool {
	for c, want := range filter {
		got := r[c]
		if want == nil || got == nil {
			if want != got {
				return false
			}
			continue
		}
		if compare(got, normalize(want)) != 0 {
			return false
		}
	}
	return true
}

// normalize stores values the way the SQL drivers hand them back: money as
// decimal, times in UTC, nil pointers as NULL.
func normalize(v any) any {
	switch t := v.(type) {
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case time.Time:
		return t.UTC()
	case int:
		return int64(t)
	default:
		return v
	}
}

func normalizeRow(r Row) Row {
	out := make(Row, len(r))
	for c, v := range r {
		out[c] = normalize(v)
	}
	return out
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for c, v := range r {
		out[c] = v
	}
	return out
}

func compare(a, b any) int {
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case decimal.Decimal:
		if y, ok := b.(decimal.Decimal); ok {
			return x.Cmp(y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
