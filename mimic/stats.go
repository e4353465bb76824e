package mimic

import (
	"errors"
	"sync/atomic"
)

// SkipCounts tallies ticks that produced nothing, by cause.
type SkipCounts struct {
	MissingPose      uint64 `json:"missing_pose"`
	IncompleteWindow uint64 `json:"incomplete_window"`
	Degenerate       uint64 `json:"degenerate"`
	Silence          uint64 `json:"silence"`
	Other            uint64 `json:"other"`
}

// Total returns the sum over all causes.
func (s SkipCounts) Total() uint64 {
	return s.MissingPose + s.IncompleteWindow + s.Degenerate + s.Silence + s.Other
}

type skipCounters struct {
	missingPose      atomic.Uint64
	incompleteWindow atomic.Uint64
	degenerate       atomic.Uint64
	silence          atomic.Uint64
	other            atomic.Uint64
}

func (s *skipCounters) record(err error) {
	switch {
	case errors.Is(err, ErrMissingPose), errors.Is(err, ErrInvalidFrame):
		s.missingPose.Add(1)
	case errors.Is(err, ErrIncompleteWindow):
		s.incompleteWindow.Add(1)
	case errors.Is(err, ErrDegenerateNormalization):
		s.degenerate.Add(1)
	case errors.Is(err, ErrSilence):
		s.silence.Add(1)
	default:
		s.other.Add(1)
	}
}

func (s *skipCounters) snapshot() SkipCounts {
	return SkipCounts{
		MissingPose:      s.missingPose.Load(),
		IncompleteWindow: s.incompleteWindow.Load(),
		Degenerate:       s.degenerate.Load(),
		Silence:          s.silence.Load(),
		Other:            s.other.Load(),
	}
}

// Stats is a point-in-time view of a session.
type Stats struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`

	// Examples is the corpus size. Nothing bounds it while recording.
	Examples       int     `json:"examples"`
	WindowFill     int     `json:"window_fill"`
	WindowCapacity int     `json:"window_capacity"`
	LastRMS        float64 `json:"last_rms"`

	FramesIngested uint64 `json:"frames_ingested"`
	FramesRejected uint64 `json:"frames_rejected"`
	PosesIngested  uint64 `json:"poses_ingested"`

	RecordTicks uint64     `json:"record_ticks"`
	Recorded    uint64     `json:"recorded"`
	RecordSkips SkipCounts `json:"record_skips"`

	InferenceTicks uint64     `json:"inference_ticks"`
	Predictions    uint64     `json:"predictions"`
	InferenceSkips SkipCounts `json:"inference_skips"`

	HasModel bool `json:"has_model"`
}
