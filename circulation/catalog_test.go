package circulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MemoryCatalog_AddAndFind(t *testing.T) {
	c := NewMemoryCatalog()

	added, err := c.AddTitle("ISBN-1", "Dune", "Frank Herbert", 1965)
	require.NoError(t, err)
	assert.Equal(t, TitleAvailable, added.Status)

	got, err := c.FindByKey("ISBN-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Name)

	// Lookups return copies: mutating one must not leak into the store.
	got.Name = "Changed"
	again, err := c.FindByKey("ISBN-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune", again.Name)

	_, err = c.FindByKey("ISBN-2")
	assert.ErrorIs(t, err, ErrTitleNotFound)
}

func Test_MemoryCatalog_RejectsDuplicateKey(t *testing.T) {
	c := NewMemoryCatalog()
	_, err := c.AddTitle("ISBN-1", "Dune", "Frank Herbert", 1965)
	require.NoError(t, err)

	_, err = c.AddTitle("ISBN-1", "Other", "Other", 0)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func Test_MemoryCatalog_SearchByField(t *testing.T) {
	c := NewMemoryCatalog()
	_, err := c.AddTitle("ISBN-1", "Dune", "Frank Herbert", 1965)
	require.NoError(t, err)
	_, err = c.AddTitle("ISBN-2", "Dune Messiah", "Frank Herbert", 1969)
	require.NoError(t, err)
	_, err = c.AddTitle("ISBN-3", "Hyperion", "Dan Simmons", 1989)
	require.NoError(t, err)

	byName, err := c.Search("dune", SearchByName)
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	byAuthor, err := c.Search("herbert", SearchByAuthor)
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	byKey, err := c.Search("ISBN-3", SearchByKey)
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	assert.Equal(t, "Hyperion", byKey[0].Name)

	empty, err := c.Search("   ", SearchByName)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func Test_MemoryCatalog_MarkBorrowedAndAvailable(t *testing.T) {
	c := NewMemoryCatalog()
	_, err := c.AddTitle("ISBN-1", "Dune", "Frank Herbert", 1965)
	require.NoError(t, err)

	borrowed := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	due := borrowed.AddDate(0, 0, 14)
	require.NoError(t, c.MarkBorrowed("ISBN-1", "MEMBER-1", borrowed, due))

	got, err := c.FindByKey("ISBN-1")
	require.NoError(t, err)
	assert.Equal(t, TitleBorrowed, got.Status)
	assert.Equal(t, "MEMBER-1", got.BorrowerKey)
	assert.Equal(t, due, got.DueDate)

	// Double borrow is rejected at the store level too.
	err = c.MarkBorrowed("ISBN-1", "MEMBER-2", borrowed, due)
	assert.ErrorIs(t, err, ErrTitleUnavailable)

	require.NoError(t, c.MarkAvailable("ISBN-1"))
	got, err = c.FindByKey("ISBN-1")
	require.NoError(t, err)
	assert.Equal(t, TitleAvailable, got.Status)
	assert.Empty(t, got.BorrowerKey)
	assert.True(t, got.DueDate.IsZero())

	assert.ErrorIs(t, c.MarkBorrowed("ISBN-9", "MEMBER-1", borrowed, due), ErrTitleNotFound)
	assert.ErrorIs(t, c.MarkAvailable("ISBN-9"), ErrTitleNotFound)
}

func Test_MemoryCatalog_RemoveAndList(t *testing.T) {
	c := NewMemoryCatalog()
	_, err := c.AddTitle("ISBN-2", "B", "X", 0)
	require.NoError(t, err)
	_, err = c.AddTitle("ISBN-1", "A", "Y", 0)
	require.NoError(t, err)

	all, err := c.AllTitles()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ISBN-1", all[0].Key, "listing is sorted by key")

	removed, err := c.RemoveTitle("ISBN-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.RemoveTitle("ISBN-1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func Test_MemoryCatalog_RemoveRefusedWhileBorrowed(t *testing.T) {
	c := NewMemoryCatalog()
	_, err := c.AddTitle("ISBN-1", "Dune", "Frank Herbert", 1965)
	require.NoError(t, err)

	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.MarkBorrowed("ISBN-1", "MEMBER-1", now, now.AddDate(0, 0, 14)))

	removed, err := c.RemoveTitle("ISBN-1")
	assert.False(t, removed)
	require.ErrorIs(t, err, ErrTitleUnavailable)

	// Once the copy is back on the shelf it can be removed.
	require.NoError(t, c.MarkAvailable("ISBN-1"))
	removed, err = c.RemoveTitle("ISBN-1")
	require.NoError(t, err)
	assert.True(t, removed)
}
