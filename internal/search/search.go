// Package search implements the fuzzy/substring matcher over symbol and
// file tables, and the prefix/suffix-prefiltered, optionally
// case-insensitive memory search used by the "search memory" feature.
//
// Grounded on original_source/src/search.rs: SearchQuery/PaddedString
// (parse, case-sensitivity sniffed from the query itself), SearchResult/
// SearchResults (capped-and-sorted result set, progress counters), and
// SearcherProperties/Searcher (pluggable search backends fanned out across
// a worker pool with cooperative cancellation and a completion wake).
package search

import (
	"strings"

	"golang.org/x/exp/slices"
)

// MaxResults caps the live result set the same way the source's
// MAX_RESULTS does: a search can match far more than this, but only the
// best MaxResults are kept sorted and shown while it runs.
const MaxResults = 1000

// Query is a parsed search string, grounded on SearchQuery::parse: a query
// is case-sensitive exactly when it contains an uppercase letter, freeing
// the common lowercase query from needing an explicit case flag.
type Query struct {
	Text          string
	CaseSensitive bool
}

// ParseQuery mirrors SearchQuery::parse.
func ParseQuery(s string) Query {
	return Query{Text: s, CaseSensitive: strings.IndexFunc(s, func(r rune) bool {
		return r >= 'A' && r <= 'Z'
	}) >= 0}
}

func (q Query) Empty() bool { return q.Text == "" }

// Result is one match, small and cheap to sort, mirroring SearchResult:
// the slow formatted view (name, file, match ranges) is only computed for
// the results actually on screen, via a Source's Format method.
type Result struct {
	Score     int
	SourceIdx int
	ID        int
}

// Results is a capped, sorted snapshot of a search in progress, mirroring
// SearchResults.
type Results struct {
	Items        []Result
	TotalResults int

	ItemsDone  int
	ItemsTotal int
	BytesDone  int

	Complete bool
}

func newResults() Results { return Results{Complete: true} }

// sortAndTruncate keeps only the MaxResults best (lowest-score) results,
// mirroring sort_and_truncate_results's sort_unstable_by_key(|r| r.score).
func sortAndTruncate(items []Result) []Result {
	slices.SortFunc(items, func(a, b Result) int { return a.Score - b.Score })
	if len(items) > MaxResults {
		items = items[:MaxResults]
	}
	return items
}
