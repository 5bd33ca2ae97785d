// Package system exercises the clock adapters.
package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

// TestFixedClock returns the configured instant regardless of zone.
func TestFixedClock(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+9", 9*3600)
	at := time.Date(2026, 1, 2, 3, 0, 0, 0, loc)
	clk := Fixed(at)
	require.True(t, clk.Now().Equal(at))
	require.Equal(t, time.UTC, clk.Now().Location())
	require.Equal(t, 1, clk.Now().Day())
}
