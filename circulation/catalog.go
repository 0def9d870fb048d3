package circulation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// SearchField names the title field a catalog search matches against.
type SearchField string

const (
	SearchByName   SearchField = "name"
	SearchByAuthor SearchField = "author"
	SearchByKey    SearchField = "key"
)

// selector returns the accessor for the field. Unknown fields search the
// display name.
func (f SearchField) selector() func(*Title) string {
	switch f {
	case SearchByAuthor:
		return func(t *Title) string { return t.Author }
	case SearchByKey:
		return func(t *Title) string { return t.Key }
	default:
		return func(t *Title) string { return t.Name }
	}
}

// Catalog is the title-store collaborator. The engines hold lookup keys
// into it and mutate availability only through MarkBorrowed/MarkAvailable;
// they never own the records. Implementations must be safe for concurrent
// use.
type Catalog interface {
	FindByKey(key string) (*Title, error)
	AddTitle(key, name, author string, year int) (*Title, error)
	RemoveTitle(key string) (bool, error)
	AllTitles() ([]*Title, error)
	Search(query string, field SearchField) ([]*Title, error)
	MarkBorrowed(key, memberKey string, borrowDate, dueDate time.Time) error
	MarkAvailable(key string) error
}

// MemoryCatalog keeps titles in a map guarded by a RWMutex. Lookups return
// copies so callers never observe a record mid-mutation.
type MemoryCatalog struct {
	mu     sync.RWMutex
	titles map[string]*Title
}

// NewMemoryCatalog returns an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{titles: make(map[string]*Title)}
}

func (c *MemoryCatalog) FindByKey(key string) (*Title, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.titles[key]
	if !ok {
		return nil, fmt.Errorf("title %s: %w", key, ErrTitleNotFound)
	}
	cp := *t
	return &cp, nil
}

func (c *MemoryCatalog) AddTitle(key, name, author string, year int) (*Title, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.titles[key]; ok {
		return nil, fmt.Errorf("title %s: %w", key, ErrDuplicateKey)
	}
	t := &Title{Key: key, Name: name, Author: author, Year: year, Status: TitleAvailable}
	c.titles[key] = t
	cp := *t
	return &cp, nil
}

func (c *MemoryCatalog) RemoveTitle(key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.titles[key]
	if !ok {
		return false, nil
	}
	if t.Status == TitleBorrowed {
		return false, fmt.Errorf("title %s is on loan: %w", key, ErrTitleUnavailable)
	}
	delete(c.titles, key)
	return true, nil
}

func (c *MemoryCatalog) AllTitles() ([]*Title, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Title, 0, len(c.titles))
	for _, t := range c.titles {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Search does a case-insensitive substring match on the selected field.
func (c *MemoryCatalog) Search(query string, field SearchField) ([]*Title, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []*Title{}, nil
	}
	sel := field.selector()

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Title
	for _, t := range c.titles {
		if strings.Contains(strings.ToLower(sel(t)), query) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (c *MemoryCatalog) MarkBorrowed(key, memberKey string, borrowDate, dueDate time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.titles[key]
	if !ok {
		return fmt.Errorf("title %s: %w", key, ErrTitleNotFound)
	}
	if t.Status != TitleAvailable {
		return fmt.Errorf("title %s: %w", key, ErrTitleUnavailable)
	}
	t.Status = TitleBorrowed
	t.BorrowerKey = memberKey
	t.BorrowDate = borrowDate
	t.DueDate = dueDate
	return nil
}

func (c *MemoryCatalog) MarkAvailable(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.titles[key]
	if !ok {
		return fmt.Errorf("title %s: %w", key, ErrTitleNotFound)
	}
	t.Status = TitleAvailable
	t.BorrowerKey = ""
	t.BorrowDate = time.Time{}
	t.DueDate = time.Time{}
	return nil
}
