// Package search implements the two cooperating search indexes over
// decrypted notes (spec.md §4.5): a structured index over typed fields and
// a bloom-filter-per-document full-text index.
package search

import (
	"hash"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/holiman/bloomfilter/v2"

	"turtlcore/internal/turtlerr"
)

// DefaultBloomItems and DefaultBloomFPRate are the per-document bloom
// filter defaults from spec.md §4.5 / the reference full-text index.
const (
	DefaultBloomItems  = 20000
	DefaultBloomFPRate = 0.01
)

var rePunct = regexp.MustCompile(`[-[:punct:]_]+`)

// stopwords is deliberately a tiny list — the reference implementation
// ships the same short set with a standing TODO to extend it; carried
// forward unchanged rather than "fixed", since a bigger list changes
// search results in ways nothing downstream expects.
var stopwords = map[string]bool{
	"and": true,
	"or":  true,
	"the": true,
	"but": true,
}

// process lowercases, strips punctuation, and splits on whitespace.
func process(body string) []string {
	body = strings.ToLower(body)
	body = rePunct.ReplaceAllString(body, " ")
	return strings.Fields(body)
}

func wordHash(word string) hash.Hash64 {
	h := fnv.New64a()
	h.Write([]byte(word))
	return h
}

// FullTextIndex is a per-document bloom filter index: fixed memory per
// document, O(N) search over indexed documents, false positives possible,
// false negatives never.
type FullTextIndex struct {
	mu  sync.RWMutex
	docs map[string]*bloomfilter.Filter
}

func NewFullTextIndex() *FullTextIndex {
	return &FullTextIndex{docs: make(map[string]*bloomfilter.Filter)}
}

// Index (re)indexes a document's body, replacing any prior entry.
func (f *FullTextIndex) Index(id, body string) error {
	filter, err := bloomfilter.NewOptimal(DefaultBloomItems, DefaultBloomFPRate)
	if err != nil {
		return turtlerr.Wrap(err, "search.FullTextIndex.Index")
	}
	for _, word := range process(body) {
		if stopwords[word] {
			continue
		}
		filter.Add(wordHash(stem(word)))
	}
	f.mu.Lock()
	f.docs[id] = filter
	f.mu.Unlock()
	return nil
}

// Unindex removes a document.
func (f *FullTextIndex) Unindex(id string) {
	f.mu.Lock()
	delete(f.docs, id)
	f.mu.Unlock()
}

// Search returns every document id whose filter contains every (stemmed,
// stopword-filtered) token of query — an AND search, sorted by id for
// deterministic results, matching the reference implementation exactly.
func (f *FullTextIndex) Search(query string) []string {
	var words []string
	for _, w := range process(query) {
		if stopwords[w] {
			continue
		}
		words = append(words, stem(w))
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	var ids []string
	for id, filter := range f.docs {
		matches := true
		for _, w := range words {
			if !filter.Contains(wordHash(w)) {
				matches = false
				break
			}
		}
		if matches {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
