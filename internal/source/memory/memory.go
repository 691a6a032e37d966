package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"conti/internal/core"
	"conti/internal/source"
)

// record keeps amount and date as text, the way a loosely typed store
// would, so decoding problems surface per row at read time.
type record struct {
	id          int64
	date        string
	description string
	amount      string
	categoryID  int64
}

type Store struct {
	mu         sync.RWMutex
	closed     bool
	cats       map[int64]core.Category
	items      map[int64]record
	nextCatID  int64
	nextItemID int64
}

var _ source.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		cats:  make(map[int64]core.Category),
		items: make(map[int64]record),
	}
}

// NewFromFiles seeds the store from categories.csv and expenses.csv in
// base. Missing files leave the store empty.
func NewFromFiles(base string) (*Store, error) {
	s := New()

	catRows, err := readCSV(filepath.Join(base, "categories.csv"))
	if err != nil {
		return nil, err
	}
	for i, row := range catRows {
		if len(row) < 3 {
			return nil, fmt.Errorf("categories.csv line %d: expected 3 fields", i+1)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("categories.csv line %d: invalid id: %w", i+1, err)
		}
		typ, err := core.ParseCategoryType(row[2])
		if err != nil {
			return nil, fmt.Errorf("categories.csv line %d: %w", i+1, err)
		}
		s.putCategory(core.Category{ID: id, Description: strings.TrimSpace(row[1]), Type: typ})
	}

	expRows, err := readCSV(filepath.Join(base, "expenses.csv"))
	if err != nil {
		return nil, err
	}
	for i, row := range expRows {
		if len(row) < 5 {
			return nil, fmt.Errorf("expenses.csv line %d: expected 5 fields", i+1)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expenses.csv line %d: invalid id: %w", i+1, err)
		}
		catID, err := strconv.ParseInt(strings.TrimSpace(row[4]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expenses.csv line %d: invalid category id: %w", i+1, err)
		}
		s.PutRaw(id, row[1], row[2], row[3], catID)
	}

	return s, nil
}

// PutRaw stores a transaction without validation. Seeds and tests use it
// to model rows written by older or foreign tools.
func (s *Store) PutRaw(id int64, date, description, amount string, categoryID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = record{
		id:          id,
		date:        strings.TrimSpace(date),
		description: description,
		amount:      strings.TrimSpace(amount),
		categoryID:  categoryID,
	}
	if id > s.nextItemID {
		s.nextItemID = id
	}
}

func (s *Store) putCategory(c core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cats[c.ID] = c
	if c.ID > s.nextCatID {
		s.nextCatID = c.ID
	}
}

// Close makes every later read fail with source.ErrSourceUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) ListExpensesJoined(_ context.Context, q source.Query) ([]source.RowResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, source.ErrSourceUnavailable
	}

	start, end := q.Start.String(), q.End.String()
	var out []source.RowResult
	for _, rec := range s.items {
		if q.ByCategory && rec.categoryID != q.CategoryID {
			continue
		}
		cat, ok := s.cats[rec.categoryID]
		if !ok {
			continue
		}
		// Bounds compare the stored text, as the SQL stores do, so an
		// undecodable date is reported only when it sorts inside the range.
		if (start != "" && rec.date < start) || (end != "" && rec.date > end) {
			continue
		}
		date, err := core.ParseDate(rec.date)
		if err != nil {
			out = append(out, source.Skipped(rec.id, err))
			continue
		}
		amount, err := core.ParseAmount(rec.amount)
		if err != nil {
			out = append(out, source.Skipped(rec.id, err))
			continue
		}
		out = append(out, source.Ok(source.JoinedExpense{
			ExpenseID:           rec.id,
			Date:                date,
			Description:         rec.description,
			Amount:              amount,
			CategoryID:          rec.categoryID,
			CategoryDescription: cat.Description,
		}))
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Row.Date, out[j].Row.Date
		if !di.Equal(dj.Time) {
			return di.Before(dj.Time)
		}
		return out[i].ExpenseID < out[j].ExpenseID
	})
	return out, nil
}

func (s *Store) CategoryExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, source.ErrSourceUnavailable
	}
	_, ok := s.cats[id]
	return ok, nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, source.ErrSourceUnavailable
	}
	out := make([]core.Category, 0, len(s.cats))
	for _, c := range s.cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddCategory(_ context.Context, c core.Category) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, source.ErrSourceUnavailable
	}
	s.nextCatID++
	c.ID = s.nextCatID
	s.cats[c.ID] = c
	return c.ID, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return source.ErrSourceUnavailable
	}
	if _, ok := s.cats[c.ID]; !ok {
		return fmt.Errorf("category %d: %w", c.ID, source.ErrNotFound)
	}
	s.cats[c.ID] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return source.ErrSourceUnavailable
	}
	if _, ok := s.cats[id]; !ok {
		return fmt.Errorf("category %d: %w", id, source.ErrNotFound)
	}
	for _, rec := range s.items {
		if rec.categoryID == id {
			return fmt.Errorf("category %d: %w", id, source.ErrCategoryInUse)
		}
	}
	delete(s.cats, id)
	return nil
}

func (s *Store) AddExpense(_ context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, source.ErrSourceUnavailable
	}
	if _, ok := s.cats[e.CategoryID]; !ok {
		return 0, fmt.Errorf("category %d: %w", e.CategoryID, source.ErrCategoryMissing)
	}
	s.nextItemID++
	s.items[s.nextItemID] = toRecord(s.nextItemID, e)
	return s.nextItemID, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return source.ErrSourceUnavailable
	}
	if _, ok := s.items[e.ID]; !ok {
		return fmt.Errorf("expense %d: %w", e.ID, source.ErrNotFound)
	}
	if _, ok := s.cats[e.CategoryID]; !ok {
		return fmt.Errorf("category %d: %w", e.CategoryID, source.ErrCategoryMissing)
	}
	s.items[e.ID] = toRecord(e.ID, e)
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return source.ErrSourceUnavailable
	}
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("expense %d: %w", id, source.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

func toRecord(id int64, e core.Expense) record {
	return record{
		id:          id,
		date:        e.Date.String(),
		description: e.Description,
		amount:      e.Amount.String(),
		categoryID:  e.CategoryID,
	}
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}
