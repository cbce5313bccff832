package search_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avodev/dbgcore/internal/search"
)

func TestParseQuerySniffsCaseSensitivity(t *testing.T) {
	assert.False(t, search.ParseQuery("main").CaseSensitive)
	assert.True(t, search.ParseQuery("Main").CaseSensitive)
}

func TestFindInMemoryCaseInsensitive(t *testing.T) {
	hay := []byte("the quick BROWN fox jumps over the lazy dog")
	hits := search.FindInMemory(hay, []byte("brown"), false)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(10), hits[0])
}

func TestFindInMemoryCaseSensitiveMisses(t *testing.T) {
	hay := []byte("the quick BROWN fox")
	hits := search.FindInMemory(hay, []byte("brown"), true)
	assert.Empty(t, hits)
}

func TestFindInMemoryLongNeedleCrossesBlockBoundary(t *testing.T) {
	needle := "abcdefghijklmnopqrstuvwxyz0123456789ABCD" // > 32 bytes
	hay := []byte("prefix-" + needle + "-suffix")
	hits := search.FindInMemory(hay, []byte(needle), true)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(7), hits[0])
}

func TestFindInMemoryEmptyNeedleMatchesNothing(t *testing.T) {
	assert.Empty(t, search.FindInMemory([]byte("anything"), nil, true))
}

func TestSessionUpdateFindsMatchesAcrossSources(t *testing.T) {
	pool := search.NewPool(2)
	defer pool.Close()
	wake := make(chan struct{}, 1)
	sess := search.NewSession(pool, wake)

	sources := []search.Source{
		search.NameSource{Names: []string{"main", "handleRequest", "mainLoop"}},
		search.NameSource{Names: []string{"README.md", "main.go"}},
	}
	assert.True(t, sess.Update(sources, search.ParseQuery("main")))

	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("search never completed")
	}

	res := sess.Results()
	assert.True(t, res.Complete)
	assert.GreaterOrEqual(t, len(res.Items), 3)
}

func TestSessionUpdateCancelsPreviousSearch(t *testing.T) {
	pool := search.NewPool(1)
	defer pool.Close()
	sess := search.NewSession(pool, nil)

	sources := []search.Source{search.NameSource{Names: []string{"alpha", "beta"}}}
	sess.Update(sources, search.ParseQuery("a"))
	assert.True(t, sess.Update(sources, search.ParseQuery("b")))
}

func TestPoolRunsSubmittedJobs(t *testing.T) {
	pool := search.NewPool(3)
	defer pool.Close()
	done := make(chan int, 5)
	for i := 0; i < 5; i++ {
		i := i
		pool.Submit(func() { done <- i })
	}
	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		seen[<-done] = true
	}
	assert.Len(t, seen, 5)
}
