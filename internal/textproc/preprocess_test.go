package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"maxValue", []string{"max", "Value"}},
		{"parseHTTPHeader", []string{"parse", "HTTP", "Header"}},
		{"MAX_SIZE", []string{"MAX", "SIZE"}},
		{"item2count", []string{"item", "2", "count"}},
		{"plain", []string{"plain"}},
		{"__", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitIdentifier(tt.in))
		})
	}
}

func TestPreprocess(t *testing.T) {
	p := New(WithMinLength(1))

	t.Run("compound identifiers keep the whole token", func(t *testing.T) {
		terms := p.Preprocess("maxValue", false)
		assert.Equal(t, []string{"maxvalue", "max", "value"}, terms)
	})

	t.Run("stop words removed", func(t *testing.T) {
		terms := p.Preprocess("the value is null", false)
		assert.Equal(t, []string{"value", "null"}, terms)
	})

	t.Run("stemming", func(t *testing.T) {
		terms := p.Preprocess("orders running", true)
		assert.Equal(t, []string{"order", "run"}, terms)
	})

	t.Run("single letter operands survive with min length 1", func(t *testing.T) {
		assert.Equal(t, []string{"x"}, p.Preprocess("x", true))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, p.Preprocess("  ", true))
	})
}

func TestPreprocessMinLength(t *testing.T) {
	p := New()
	assert.Equal(t, []string{"quantity"}, p.Preprocess("x quantity", false))
}

func TestJoin(t *testing.T) {
	p := New(WithMinLength(1), WithStopWords([]string{"foo"}))
	assert.Equal(t, "bar baz", p.Join("foo bar baz", false))
}

func TestWithStemming(t *testing.T) {
	p := New(WithStemming(false))
	assert.Equal(t, []string{"orders", "running"}, p.Preprocess("orders running", true))
}
