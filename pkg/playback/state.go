package playback

import "time"

// Status is the playback status.
type Status int

const (
	Stopped Status = iota
	Playing
	Paused
	Completed
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the engine.
type State struct {
	Dataset     string
	Session     string // unique per Start
	StartTime   uint64
	EndTime     uint64
	CurrentTime uint64
	Duration    time.Duration
	Speed       float64
	Status      Status

	Dispatched uint64 // records handed to the sender this session
	SendErrors uint64 // failed sends this session

	// Err is the read error that stopped the last session, if any.
	Err error
}

// Progress returns how far playback has moved through the dataset, in
// [0, 1]. It follows Timeline.Progress, except that a completed session
// always reports 1.
func (s State) Progress() float64 {
	if s.Status == Completed {
		return 1
	}
	return fraction(s.StartTime, s.EndTime, s.CurrentTime)
}
