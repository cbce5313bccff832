package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingKeepsMostRecentEntriesWhenFull(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.push(Entry{Message: string(rune('a' + i))})
	}
	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Message)
	assert.Equal(t, "d", entries[1].Message)
	assert.Equal(t, "e", entries[2].Message)
}

func TestRingReturnsPartialContentsBeforeFull(t *testing.T) {
	r := NewRing(5)
	r.push(Entry{Message: "only"})
	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "only", entries[0].Message)
}

func TestNewLoggerFansOutToRing(t *testing.T) {
	ring := NewRing(10)
	logger := New(ring, false)
	logger.Info("hello", "key", "value")

	entries := ring.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Message)
}

func TestNewLoggerHonorsTraceLoggingLevel(t *testing.T) {
	ring := NewRing(10)
	logger := New(ring, false)
	logger.Debug("should be filtered")
	assert.Empty(t, ring.Entries())

	verboseRing := NewRing(10)
	verbose := New(verboseRing, true)
	verbose.Debug("should pass")
	assert.Len(t, verboseRing.Entries(), 1)
}
