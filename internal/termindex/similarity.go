package termindex

import "math"

// TermStats describes one query term matched in one document field
type TermStats struct {
	Freq         int // occurrences of the term in the field
	DocLength    int // number of terms in the field
	DocFreq      int // documents whose field contains the term
	DocCount     int // documents in the index
	AvgDocLength float64
}

// Similarity scores a single matched query clause. A document's score is
// the sum over matched clauses.
type Similarity interface {
	Name() string
	Score(s TermStats) float64
}

// Count scores one point per matched clause (term presence)
type Count struct{}

func (Count) Name() string { return "count" }

func (Count) Score(TermStats) float64 { return 1 }

// ClassicTFIDF is the vector-space weighting sqrt(tf) * idf^2 / sqrt(length)
// with idf = 1 + ln((N+1)/(df+1))
type ClassicTFIDF struct{}

func (ClassicTFIDF) Name() string { return "classic" }

func (ClassicTFIDF) Score(s TermStats) float64 {
	if s.Freq == 0 {
		return 0
	}
	idf := 1 + math.Log(float64(s.DocCount+1)/float64(s.DocFreq+1))
	norm := 1.0
	if s.DocLength > 0 {
		norm = 1 / math.Sqrt(float64(s.DocLength))
	}
	return math.Sqrt(float64(s.Freq)) * idf * idf * norm
}

// InverseLength scores a matched clause 1/length so that short identifiers
// matching the query outrank long ones
type InverseLength struct{}

func (InverseLength) Name() string { return "inverse-length" }

func (InverseLength) Score(s TermStats) float64 {
	if s.DocLength <= 0 {
		return 0
	}
	return 1 / float64(s.DocLength)
}

// BM25 is Okapi BM25
type BM25 struct {
	K1 float64
	B  float64
}

// DefaultBM25 uses k1=1.2, b=0.75
func DefaultBM25() BM25 {
	return BM25{K1: 1.2, B: 0.75}
}

func (b BM25) Name() string { return "bm25" }

func (b BM25) Score(s TermStats) float64 {
	if s.Freq == 0 {
		return 0
	}
	idf := math.Log(1 + (float64(s.DocCount-s.DocFreq)+0.5)/(float64(s.DocFreq)+0.5))
	tf := float64(s.Freq)
	lengthRatio := 1.0
	if s.AvgDocLength > 0 {
		lengthRatio = float64(s.DocLength) / s.AvgDocLength
	}
	return idf * tf * (b.K1 + 1) / (tf + b.K1*(1-b.B+b.B*lengthRatio))
}
