package algorithms

import (
	"strings"
	"sync"

	"github.com/kljensen/snowball"
)

// RussianStemmer reduces Russian words to their stems using the Snowball
// algorithm. Stems are what the classifier dictionaries and the quick-search
// index operate on, so stemming must be deterministic for a given input.
type RussianStemmer struct {
	language string
	cache    map[string]string
	mu       sync.RWMutex
}

// NewRussianStemmer creates a stemmer with an internal cache.
// The cache only memoizes a pure function, so cached and uncached
// results are always identical.
func NewRussianStemmer() *RussianStemmer {
	return &RussianStemmer{
		language: "russian",
		cache:    make(map[string]string),
	}
}

// Stem returns the stem of a single word.
// Example: "креветки" -> "креветк", "тушка" -> "тушк".
func (s *RussianStemmer) Stem(word string) string {
	normalized := strings.ToLower(strings.TrimSpace(word))
	if normalized == "" {
		return ""
	}

	s.mu.RLock()
	if cached, found := s.cache[normalized]; found {
		s.mu.RUnlock()
		return cached
	}
	s.mu.RUnlock()

	stemmed, err := snowball.Stem(normalized, s.language, true)
	if err != nil {
		// Non-Russian tokens (latin brand names, codes) pass through unchanged.
		stemmed = normalized
	}

	s.mu.Lock()
	s.cache[normalized] = stemmed
	s.mu.Unlock()

	return stemmed
}

// StemTokens returns stems for a token sequence, preserving order.
func (s *RussianStemmer) StemTokens(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	stemmed := make([]string, len(tokens))
	for i, token := range tokens {
		stemmed[i] = s.Stem(token)
	}
	return stemmed
}
