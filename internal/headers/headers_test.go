package headers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertGetCaseInsensitive(t *testing.T) {
	h := New()
	h.Insert("Content-Type", "text/plain")
	v, ok := h.Get("content-type")
	require.True(t, ok)
	require.Equal(t, "text/plain", v)
}

func TestInsertPreservesFirstCasingOnOverwrite(t *testing.T) {
	h := New()
	h.Insert("X-Trace-Id", "a")
	h.Insert("x-trace-id", "b")

	var gotName, gotValue string
	h.Each(func(name, value string) { gotName, gotValue = name, value })
	require.Equal(t, "X-Trace-Id", gotName)
	require.Equal(t, "b", gotValue)
	require.Equal(t, 1, h.Len())
}

func TestRemove(t *testing.T) {
	h := New()
	h.Insert("A", "1")
	h.Insert("B", "2")
	h.Remove("a")
	require.False(t, h.Contains("A"))
	require.True(t, h.Contains("B"))
	require.Equal(t, 1, h.Len())
}

func TestContentLength(t *testing.T) {
	h := New()
	_, ok := h.ContentLength()
	require.False(t, ok)

	h.Insert("Content-Length", "123")
	n, ok := h.ContentLength()
	require.True(t, ok)
	require.EqualValues(t, 123, n)

	h2 := New()
	h2.Insert("Content-Length", "not-a-number")
	_, ok = h2.ContentLength()
	require.False(t, ok)
}

func TestIsChunked(t *testing.T) {
	h := New()
	require.False(t, h.IsChunked())
	h.Insert("Transfer-Encoding", "gzip, chunked")
	require.True(t, h.IsChunked())
}

func TestParseLines(t *testing.T) {
	h := ParseLines([]string{"Host: example.com", "X-Foo:  bar  ", "malformed-no-colon"})
	v, ok := h.Get("host")
	require.True(t, ok)
	require.Equal(t, "example.com", v)
	v, ok = h.Get("x-foo")
	require.True(t, ok)
	require.Equal(t, "bar", v)
	require.Equal(t, 2, h.Len())
}

func TestIsEmpty(t *testing.T) {
	h := New()
	require.True(t, h.IsEmpty())
	h.Insert("a", "b")
	require.False(t, h.IsEmpty())
}
