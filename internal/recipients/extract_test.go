package recipients

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Set
	}{
		{"empty", "", Set{}},
		{"blank lines", "\n\r\n   \n", Set{}},
		{"dedupes", "a@x.com, a@x.com\nb@x.com", Set{"a@x.com", "b@x.com"}},
		{"drops malformed", "not-an-email, c@y.com", Set{"c@y.com"}},
		{"all separators", "a@x.com;b@x.com\tc@x.com,d@x.com", Set{"a@x.com", "b@x.com", "c@x.com", "d@x.com"}},
		{"crlf", "a@x.com\r\nb@x.com\r\n", Set{"a@x.com", "b@x.com"}},
		{"case sensitive", "A@x.com,a@x.com", Set{"A@x.com", "a@x.com"}},
		{"header row", "name,email\nAda,ada@example.org\nBob,bob@example.org", Set{"ada@example.org", "bob@example.org"}},
		{"no tld", "a@localhost", Set{}},
		{"double at", "a@b@c.com", Set{}},
		{"inner space", "a b@x.com", Set{}},
		{"vertical tab", "a\vb@x.com", Set{}},
		{"no-break space", "a\u00a0b@x.com", Set{}},
		{"em space", "a\u2003b@x.com", Set{}},
		{"byte order mark", "a\ufeffb@x.com", Set{}},
		{"unicode space beside valid", "x@y.com,a\u2003b@x.com", Set{"x@y.com"}},
		{"first seen order", "z@x.com\na@x.com\nz@x.com", Set{"z@x.com", "a@x.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.content))
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	content := "a@x.com; junk\nb@y.org,a@x.com"
	assert.Equal(t, Extract(content), Extract(content))
}

func TestExtractFrom(t *testing.T) {
	set, err := ExtractFrom(context.Background(), strings.NewReader("a@x.com\nb@x.com"))
	require.NoError(t, err)
	assert.Equal(t, Set{"a@x.com", "b@x.com"}, set)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestExtractFromReadError(t *testing.T) {
	_, err := ExtractFrom(context.Background(), failingReader{})
	require.Error(t, err)
}

type blockingReader struct{ release chan struct{} }

func (b blockingReader) Read([]byte) (int, error) {
	<-b.release
	return 0, errors.New("released")
}

func TestExtractFromCancelled(t *testing.T) {
	r := blockingReader{release: make(chan struct{})}
	defer close(r.release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ExtractFrom(ctx, r)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreview(t *testing.T) {
	set := Set{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com", "f@x.com", "g@x.com"}
	shown, more := set.Preview(5)
	assert.Len(t, shown, 5)
	assert.Equal(t, 2, more)

	shown, more = Set{"a@x.com"}.Preview(5)
	assert.Equal(t, []string{"a@x.com"}, shown)
	assert.Zero(t, more)
}

func TestAcceptsFilename(t *testing.T) {
	assert.True(t, AcceptsFilename("list.CSV"))
	assert.True(t, AcceptsFilename("list.txt"))
	assert.False(t, AcceptsFilename("list.xlsx"))
}
