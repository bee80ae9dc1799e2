package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSortMessagesBySentAtThenID(t *testing.T) {
	msgs := []ChatMessage{
		{ID: "m1", Timestamp: 100},
		{ID: "m3", Timestamp: 103},
		{ID: "m2", Timestamp: 101},
		{ID: "m0", Timestamp: 103},
	}
	SortMessages(msgs)

	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m0", "m3"}, ids)
}

func TestStatusFilterStatuses(t *testing.T) {
	got, ok := FilterClosed.Statuses()
	assert.True(t, ok)
	assert.Equal(t, []SessionStatus{SessionStatusClosedByVisitor, SessionStatusClosedByAdmin}, got)

	got, ok = FilterAll.Statuses()
	assert.True(t, ok)
	assert.Nil(t, got)

	_, ok = StatusFilter("bogus").Statuses()
	assert.False(t, ok)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "hello there", Snippet("  hello \n there "))

	long := strings.Repeat("ä", 200)
	s := Snippet(long)
	assert.Equal(t, SnippetLength, utf8.RuneCountInString(s))
	assert.True(t, strings.HasSuffix(s, "…"))
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{CurrentPage: 2, TotalPages: 2, TotalItems: 25, Limit: 20}, NewPagination(2, 20, 25))
	assert.Equal(t, 0, NewPagination(1, 20, 0).TotalPages)
	assert.Equal(t, 1, NewPagination(1, 20, 20).TotalPages)
}
