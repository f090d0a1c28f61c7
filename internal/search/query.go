package search

import "sort"

// Query is a fluent builder composing the structured index and full-text
// index via AND/OR set operations (spec.md §4.5: "Queries compose AND/OR
// across tables via INTERSECT/UNION").
type Query struct {
	structured *StructuredIndex
	fulltext   *FullTextIndex

	result      []string
	initialized bool
	excludeTags []string
}

// NewQuery starts a fresh query against the given indexes.
func NewQuery(structured *StructuredIndex, fulltext *FullTextIndex) *Query {
	return &Query{structured: structured, fulltext: fulltext}
}

func (q *Query) intersect(ids []string) *Query {
	if !q.initialized {
		q.result = ids
		q.initialized = true
		return q
	}
	q.result = intersectSorted(q.result, ids)
	return q
}

// Board narrows to notes on the given board (AND with any prior filter).
func (q *Query) Board(boardID string) *Query { return q.intersect(q.structured.ByBoard(boardID)) }

// Tag narrows to notes carrying the given tag.
func (q *Query) Tag(tag string) *Query { return q.intersect(q.structured.ByTag(tag)) }

// Type narrows to notes of the given type.
func (q *Query) Type(t string) *Query { return q.intersect(q.structured.ByType(t)) }

// Color narrows to notes of the given color.
func (q *Query) Color(c string) *Query { return q.intersect(q.structured.ByColor(c)) }

// HasFile narrows to notes with (or without) an attachment.
func (q *Query) HasFile(v bool) *Query { return q.intersect(q.structured.ByHasFile(v)) }

// Text narrows to notes whose full-text index matches the given terms.
func (q *Query) Text(query string) *Query { return q.intersect(q.fulltext.Search(query)) }

// Or unions the current result set with matches of another query built
// fresh against the same indexes (e.g. q.Or(NewQuery(idx, ft).Tag("x"))).
func (q *Query) Or(other *Query) *Query {
	if !q.initialized {
		q.result = other.Results()
		q.initialized = true
		return q
	}
	q.result = unionSorted(q.result, other.Results())
	return q
}

// ExcludeTags drops notes matching every tag in tags from the result set
// (spec.md §4.5's "count of matching exclusion tags = |exclusion set|").
func (q *Query) ExcludeTags(tags ...string) *Query {
	q.excludeTags = append(q.excludeTags, tags...)
	return q
}

// SortBy controls result ordering. The default (spec.md §4.5: "by mod
// descending, then id") requires the caller to supply each note's current
// mod timestamp since the index result set is only ids; by() lets callers
// resolve the full ordering without the index needing to know about
// arbitrary sort keys.
func (q *Query) SortBy(by func(a, b string) bool) *Query {
	ids := q.Results()
	sort.SliceStable(ids, func(i, j int) bool { return by(ids[i], ids[j]) })
	q.result = ids
	q.excludeTags = nil
	q.initialized = true
	return q
}

// Results returns the final, exclusion-applied id list.
func (q *Query) Results() []string {
	ids := q.result
	if !q.initialized {
		ids = q.structured.All()
	}
	if len(q.excludeTags) > 0 {
		return q.structured.ExcludeByTags(ids, q.excludeTags)
	}
	return ids
}

func intersectSorted(a, b []string) []string {
	ai, bi := 0, 0
	var out []string
	for ai < len(a) && bi < len(b) {
		switch {
		case a[ai] == b[bi]:
			out = append(out, a[ai])
			ai++
			bi++
		case a[ai] < b[bi]:
			ai++
		default:
			bi++
		}
	}
	return out
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
