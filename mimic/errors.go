package mimic

import "errors"

var (
	// ErrDegenerateNormalization reports a window whose values have zero
	// spread, so a z-score cannot be formed.
	ErrDegenerateNormalization = errors.New("degenerate normalization: window has zero standard deviation")

	// ErrIncompleteWindow reports a window holding fewer vectors than its
	// capacity.
	ErrIncompleteWindow = errors.New("feature window is not full")

	ErrMissingPose = errors.New("no usable pose estimate")
	ErrEmptyCorpus = errors.New("corpus is empty")

	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidFrame  = errors.New("invalid frame dimensions")

	// ErrSessionBusy reports an operation that conflicts with the session's
	// current mode.
	ErrSessionBusy   = errors.New("session is busy")
	ErrSessionClosed = errors.New("session is closed")

	ErrNoModel = errors.New("no trained model")

	// ErrSilence reports a tick gated by the RMS silence threshold.
	ErrSilence = errors.New("input is below the silence threshold")
)
