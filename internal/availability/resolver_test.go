package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	byStaff map[string][]Interval
	err     error
}

func (s *stubSource) StaffBusyIntervals(_ context.Context, staffID, _ string) ([]Interval, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byStaff[staffID], nil
}

func newTestResolver(source *stubSource) *Resolver {
	logger := zerolog.Nop()
	return NewResolver(source, &logger)
}

func TestIntervalOverlaps(t *testing.T) {
	at := func(hour, min int) time.Time {
		return time.Date(2025, 6, 2, hour, min, 0, 0, time.UTC)
	}

	booked := Interval{Start: at(14, 0), End: at(15, 0)}

	tests := []struct {
		name      string
		candidate Interval
		want      bool
	}{
		{"identical interval", Interval{at(14, 0), at(15, 0)}, true},
		{"starts inside", Interval{at(14, 30), at(15, 30)}, true},
		{"ends inside", Interval{at(13, 30), at(14, 30)}, true},
		{"contains booked", Interval{at(13, 0), at(16, 0)}, true},
		{"contained by booked", Interval{at(14, 15), at(14, 45)}, true},
		{"starts exactly at end", Interval{at(15, 0), at(16, 0)}, false},
		{"ends exactly at start", Interval{at(13, 0), at(14, 0)}, false},
		{"fully before", Interval{at(10, 0), at(11, 0)}, false},
		{"fully after", Interval{at(16, 0), at(17, 0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.candidate.Overlaps(booked))
			assert.Equal(t, tt.want, booked.Overlaps(tt.candidate))
		})
	}
}

func TestHasConflict(t *testing.T) {
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	source := &stubSource{byStaff: map[string][]Interval{
		"staff-1": {{Start: start, End: start.Add(time.Hour)}},
	}}
	resolver := newTestResolver(source)
	ctx := context.Background()

	t.Run("overlap detected", func(t *testing.T) {
		conflict, err := resolver.HasConflict(ctx, "staff-1", start.Add(30*time.Minute), time.Hour, "")
		require.NoError(t, err)
		assert.True(t, conflict)
	})

	t.Run("adjacent slot is free", func(t *testing.T) {
		conflict, err := resolver.HasConflict(ctx, "staff-1", start.Add(time.Hour), time.Hour, "")
		require.NoError(t, err)
		assert.False(t, conflict)
	})

	t.Run("unknown staff is free", func(t *testing.T) {
		conflict, err := resolver.HasConflict(ctx, "staff-9", start, time.Hour, "")
		require.NoError(t, err)
		assert.False(t, conflict)
	})

	t.Run("non-positive duration is rejected", func(t *testing.T) {
		_, err := resolver.HasConflict(ctx, "staff-1", start, 0, "")
		assert.ErrorIs(t, err, ErrInvalidCandidate)

		_, err = resolver.HasConflict(ctx, "staff-1", start, -time.Minute, "")
		assert.ErrorIs(t, err, ErrInvalidCandidate)
	})

	t.Run("source error propagates", func(t *testing.T) {
		broken := newTestResolver(&stubSource{err: errors.New("db gone")})
		_, err := broken.HasConflict(ctx, "staff-1", start, time.Hour, "")
		assert.Error(t, err)
	})
}

func TestUnavailableStaff(t *testing.T) {
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	source := &stubSource{byStaff: map[string][]Interval{
		"staff-1": {{Start: start, End: start.Add(time.Hour)}},
		"staff-2": {{Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour)}},
	}}
	resolver := newTestResolver(source)
	ctx := context.Background()

	unavailable, err := resolver.UnavailableStaff(ctx, []string{"staff-1", "staff-2", "staff-3"}, start, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff-1"}, unavailable)

	_, err = resolver.UnavailableStaff(ctx, []string{"staff-1"}, start, 0)
	assert.ErrorIs(t, err, ErrInvalidCandidate)
}
