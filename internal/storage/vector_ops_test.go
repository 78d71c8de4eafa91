package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializeVectorRoundTrip(t *testing.T) {
	vector := []float32{0, 1.5, -2.25, float32(math.Pi)}
	blob := SerializeVector(vector)
	assert.Len(t, blob, 16)
	assert.Equal(t, vector, DeserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}
