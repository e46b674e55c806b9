package pagination

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	at time.Time
	id string
}

func rowKey(r row) (time.Time, string) { return r.at, r.id }

func rows(n int) []row {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	out := make([]row, n)
	for i := range out {
		// pairs share a timestamp so the id breaks ties
		out[i] = row{at: base.Add(time.Duration(i/2) * time.Minute), id: fmt.Sprintf("veh_%02d", i)}
	}
	return out
}

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 30, 0, 123, time.UTC)
	c, err := Decode(Encode(at, "cli_7|x"))
	require.NoError(t, err)
	assert.True(t, at.Equal(c.CreatedAt))
	assert.Equal(t, "cli_7|x", c.ID)

	c, err = Decode("")
	assert.NoError(t, err)
	assert.Nil(t, c)

	for _, bad := range []string{"***", "bm9waXBl", Encode(at, "")} {
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, req.Limit)

	req, err = ParseRequest("5000", "")
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, req.Limit)

	req, err = ParseRequest("0", "")
	require.NoError(t, err)
	assert.Equal(t, 1, req.Limit)

	_, err = ParseRequest("ten", "")
	assert.Error(t, err)
}

func TestPage_WalksEverything(t *testing.T) {
	all := rows(7)
	var seen []string
	req := Request{Limit: 3}

	for pages := 0; ; pages++ {
		require.Less(t, pages, 5, "pagination did not terminate")
		page, next := Page(all, req, rowKey)
		for _, r := range page {
			seen = append(seen, r.id)
		}
		if next == "" {
			break
		}
		c, err := Decode(next)
		require.NoError(t, err)
		req.After = c
	}

	require.Len(t, seen, 7)
	for i, id := range seen {
		assert.Equal(t, fmt.Sprintf("veh_%02d", i), id)
	}
}

func TestPage_CursorPastEnd(t *testing.T) {
	all := rows(3)
	page, next := Page(all, Request{Limit: 10, After: &Cursor{CreatedAt: all[2].at, ID: all[2].id}}, rowKey)
	assert.Empty(t, page)
	assert.Empty(t, next)
}
