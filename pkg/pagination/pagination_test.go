package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 42, time.UTC), ID: uuid.New()}

	got, err := ParseCursor(EncodeCursor(want))
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestParseCursorEmptyAndInvalid(t *testing.T) {
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)

	for name, raw := range map[string]string{
		"not base64":    "%%%",
		"no separator":  base64.RawURLEncoding.EncodeToString([]byte("nope")),
		"bad timestamp": base64.RawURLEncoding.EncodeToString([]byte("x." + uuid.NewString())),
		"bad id":        base64.RawURLEncoding.EncodeToString([]byte("12.not-a-uuid")),
	} {
		_, err := ParseCursor(raw)
		assert.ErrorIs(t, err, ErrInvalidCursor, name)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -4: DefaultLimit, 10: 10, 1000: MaxLimit}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLimit(in), "limit %d", in)
	}
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestParamsFromQuery(t *testing.T) {
	params, err := ParamsFromQuery("5", "")
	require.NoError(t, err)
	assert.Equal(t, 5, params.Limit)

	_, err = ParamsFromQuery("abc", "")
	assert.Error(t, err)
	_, err = ParamsFromQuery("-1", "")
	assert.Error(t, err)
	_, err = ParamsFromQuery("", "bm9waXBl")
	assert.Error(t, err)
}

func TestCutEmitsCursorOnlyWhenMoreRowsRemain(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]Cursor, 3)
	for i := range rows {
		rows[i] = Cursor{CreatedAt: base.Add(-time.Duration(i) * time.Minute), ID: uuid.New()}
	}
	key := func(c Cursor) Cursor { return c }

	page, next := Cut(rows, 2, key)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	cursor, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, cursor.ID)

	page, next = Cut(rows, 5, key)
	assert.Len(t, page, 3)
	assert.Empty(t, next)

	page, next = Cut[Cursor](nil, 5, key)
	assert.NotNil(t, page)
	assert.Empty(t, next)
}
