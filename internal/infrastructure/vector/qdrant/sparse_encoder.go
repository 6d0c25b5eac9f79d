package qdrant

import (
	"cmp"
	"hash/fnv"
	"io"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/italian"
)

// sparseVector is a BM25-style query vector over hashed Italian stems.
// Indexing must hash terms the same way for lexical search to match.
type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	queryBM25K     = 1.2
	maxSparseTerms = 256
)

var italianStopwords = toSet(
	"a", "ad", "al", "alla", "alle", "allo", "ai", "agli", "anche", "che", "chi", "ci", "come",
	"con", "cosa", "da", "dal", "dalla", "dalle", "dei", "del", "della", "delle", "dello", "degli",
	"di", "e", "ed", "gli", "ha", "hanno", "i", "il", "in", "io", "la", "le", "lo", "ma", "mi",
	"ne", "nel", "nella", "nelle", "non", "o", "per", "più", "quale", "quali", "quello", "questo",
	"se", "si", "sono", "su", "sul", "sulla", "tra", "un", "una", "uno", "è",
)

func encodeSparseQuery(query string) sparseVector {
	termFreq := make(map[uint32]float64, 32)
	for _, term := range analyze(query) {
		termFreq[hashToken(term)]++
	}
	return bm25Weights(termFreq, queryBM25K)
}

// analyze lowercases, splits on non alphanumerics, drops stopwords and stems.
func analyze(text string) []string {
	tokens := tokenizeAlphaNum(text)
	out := tokens[:0]
	for _, tok := range tokens {
		if _, stop := italianStopwords[tok]; stop {
			continue
		}
		out = append(out, stem(tok))
	}
	return out
}

func stem(token string) string {
	for _, r := range token {
		if unicode.IsDigit(r) {
			return token
		}
	}
	env := snowballstem.NewEnv(token)
	italian.Stem(env)
	if s := env.Current(); s != "" {
		return s
	}
	return token
}

// bm25Weights saturates raw term counts with the BM25 tf curve. Over
// maxSparseTerms only the most frequent terms are kept, lower index first on
// ties. Entries are ordered by index as Qdrant expects.
func bm25Weights(tf map[uint32]float64, k float64) sparseVector {
	indices := slices.Sorted(maps.Keys(tf))
	if len(indices) > maxSparseTerms {
		slices.SortStableFunc(indices, func(a, b uint32) int {
			return cmp.Compare(tf[b], tf[a])
		})
		indices = indices[:maxSparseTerms]
		slices.Sort(indices)
	}
	values := make([]float32, len(indices))
	for i, idx := range indices {
		f := tf[idx]
		values[i] = float32(f * (k + 1) / (f + k))
	}
	return sparseVector{Indices: indices, Values: values}
}

// hashToken maps a term to its sparse index. Index 0 is never produced.
func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = io.WriteString(h, token)
	return max(h.Sum32(), 1)
}

func tokenizeAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

func toSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
