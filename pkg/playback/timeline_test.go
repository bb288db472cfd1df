package playback

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeline_SeekClamps(t *testing.T) {
	tl := NewTimeline(1000, 2000)
	tests := []struct {
		in, want uint64
	}{
		{0, 1000},
		{999, 1000},
		{1500, 1500},
		{2000, 2000},
		{5000, 2000},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tl.Seek(tt.in))
		require.Equal(t, tt.want, tl.Current())
	}
}

func TestTimeline_SetSpeedClamps(t *testing.T) {
	tl := NewTimeline(0, 10)
	tests := []struct {
		in, want float64
	}{
		{0, MinSpeed},
		{-3, MinSpeed},
		{0.5, 0.5},
		{10, 10},
		{25, MaxSpeed},
		{math.NaN(), 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tl.SetSpeed(tt.in))
	}
}

func TestTimeline_AdvanceScalesBySpeed(t *testing.T) {
	start := uint64(time.Second)
	tl := NewTimeline(start, start+uint64(time.Minute))
	tl.SetSpeed(2)

	require.False(t, tl.Advance(100*time.Millisecond))
	require.Equal(t, start+uint64(200*time.Millisecond), tl.Current())

	tl.SetSpeed(0.5)
	require.False(t, tl.Advance(time.Second))
	require.Equal(t, start+uint64(700*time.Millisecond), tl.Current())

	require.False(t, tl.Advance(0))
	require.False(t, tl.Advance(-time.Second))
	require.Equal(t, start+uint64(700*time.Millisecond), tl.Current())
}

func TestTimeline_AdvanceStopsAtEnd(t *testing.T) {
	tl := NewTimeline(0, uint64(time.Second))
	require.True(t, tl.Advance(2*time.Second))
	require.Equal(t, uint64(time.Second), tl.Current())
	require.True(t, tl.AtEnd())
	require.Equal(t, 1.0, tl.Progress())

	tl.Reset()
	require.Zero(t, tl.Current())
	require.Zero(t, tl.Progress())
}

func TestTimeline_EmptyRange(t *testing.T) {
	tl := NewTimeline(50, 10)
	require.Equal(t, uint64(50), tl.End())
	require.True(t, tl.AtEnd())
	require.Zero(t, tl.Progress())
}

func TestProgress_TimelineAndStateAgree(t *testing.T) {
	tests := []struct {
		name               string
		start, end, cursor uint64
		want               float64
	}{
		{"at start", 100, 200, 100, 0},
		{"halfway", 100, 200, 150, 0.5},
		{"at end", 100, 200, 200, 1},
		{"empty range", 100, 100, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := NewTimeline(tt.start, tt.end)
			tl.Seek(tt.cursor)
			st := State{Status: Playing, StartTime: tt.start, EndTime: tt.end, CurrentTime: tt.cursor}
			require.Equal(t, tt.want, tl.Progress())
			require.Equal(t, tl.Progress(), st.Progress())
		})
	}

	done := State{Status: Completed, StartTime: 100, EndTime: 100, CurrentTime: 100}
	require.Equal(t, 1.0, done.Progress())
}

func TestScheduler_Order(t *testing.T) {
	s := NewScheduler()
	for _, ts := range []uint64{50, 10, 40, 10, 30} {
		s.Push(Event{Timestamp: ts, Payload: []byte{byte(ts), byte(s.Len())}})
	}
	require.Equal(t, 5, s.Len())

	ev, ok := s.Peek()
	require.True(t, ok)
	require.Equal(t, uint64(10), ev.Timestamp)

	_, ok = s.NextDue(5)
	require.False(t, ok)
	require.Equal(t, 5, s.Len(), "NextDue must not pop early events")

	var got []uint64
	var order []byte
	for {
		ev, ok := s.NextDue(35)
		if !ok {
			break
		}
		got = append(got, ev.Timestamp)
		order = append(order, ev.Payload[1])
	}
	require.Equal(t, []uint64{10, 10, 30}, got)
	require.Equal(t, []byte{1, 3}, order[:2], "equal timestamps keep insertion order")
	require.Equal(t, 2, s.Len())

	s.Clear()
	require.Zero(t, s.Len())
	_, ok = s.Peek()
	require.False(t, ok)
}
