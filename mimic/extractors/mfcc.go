package extractors

import (
	"context"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-mimic/algorithms/common"
	"github.com/RyanBlaney/sonido-mimic/algorithms/filters"
	"github.com/RyanBlaney/sonido-mimic/algorithms/spectral"
	"github.com/RyanBlaney/sonido-mimic/algorithms/windowing"
	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
)

// FrameSink receives one feature frame per analysis buffer.
type FrameSink func(mimic.FeatureFrame)

// ChannelSink delivers frames to ch, giving up once ctx is done.
func ChannelSink(ctx context.Context, ch chan<- mimic.FeatureFrame) FrameSink {
	return func(f mimic.FeatureFrame) {
		select {
		case ch <- f:
		case <-ctx.Done():
		}
	}
}

// SessionSink ingests frames straight into s, logging rejected ones.
func SessionSink(s *mimic.Session) FrameSink {
	logger := logging.WithFields(logging.Fields{"component": "session_sink", "session_id": s.ID()})
	return func(f mimic.FeatureFrame) {
		if err := s.IngestFeatures(f); err != nil {
			logger.Warn("Feature frame rejected", logging.Fields{"error": err.Error()})
		}
	}
}

// MFCCExtractor cuts PCM into non-overlapping buffers of BufferSize samples
// and emits the MFCC and RMS of each one.
type MFCCExtractor struct {
	cfg    config.FeatureConfig
	sink   FrameSink
	logger logging.Logger

	dc       *filters.DCRemoval   // nil when disabled
	emphasis *filters.PreEmphasis // nil when disabled
	window   *windowing.Hann
	fft      *spectral.FFT
	mfcc     *spectral.MFCC

	pending  []float64
	filtered []float64
	windowed []float64
	frames   uint64
	start    time.Time
}

// NewMFCCExtractor builds the analysis chain for cfg. Frame timestamps count
// from the moment of construction in audio time.
func NewMFCCExtractor(cfg config.FeatureConfig, sink FrameSink) (*MFCCExtractor, error) {
	if sink == nil {
		return nil, fmt.Errorf("nil frame sink")
	}
	if cfg.BufferSize < 2 {
		return nil, fmt.Errorf("invalid buffer size: %d", cfg.BufferSize)
	}

	params := spectral.DefaultMFCCParams(cfg.SampleRate, cfg.Coefficients)
	if cfg.MelFilters > 0 {
		params.NumMelFilters = cfg.MelFilters
	}
	mfcc, err := spectral.NewMFCC(cfg.SampleRate, cfg.BufferSize, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create MFCC: %w", err)
	}

	e := &MFCCExtractor{
		cfg:  cfg,
		sink: sink,
		logger: logging.WithFields(logging.Fields{
			"component":    "mfcc_extractor",
			"buffer_size":  cfg.BufferSize,
			"coefficients": cfg.Coefficients,
		}),
		window:   windowing.NewHann(cfg.BufferSize, false),
		fft:      spectral.NewFFT(),
		mfcc:     mfcc,
		pending:  make([]float64, 0, cfg.BufferSize),
		filtered: make([]float64, cfg.BufferSize),
		windowed: make([]float64, cfg.BufferSize),
		start:    time.Now(),
	}

	if cfg.DCCutoffHz > 0 {
		if e.dc, err = filters.NewDCRemoval(cfg.SampleRate, cfg.DCCutoffHz); err != nil {
			return nil, err
		}
	}
	if cfg.PreEmphasis > 0 {
		if e.emphasis, err = filters.NewPreEmphasis(cfg.PreEmphasis); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Write appends mono PCM and emits a frame for every completed buffer. It
// returns the number of frames emitted. Leftover samples wait for the next
// call.
func (e *MFCCExtractor) Write(pcm []float64) (int, error) {
	emitted := 0
	for len(pcm) > 0 {
		take := min(e.cfg.BufferSize-len(e.pending), len(pcm))
		e.pending = append(e.pending, pcm[:take]...)
		pcm = pcm[take:]

		if len(e.pending) < e.cfg.BufferSize {
			break
		}

		frame, err := e.analyze(e.pending)
		e.pending = e.pending[:0]
		if err != nil {
			return emitted, err
		}
		e.sink(frame)
		emitted++
	}
	return emitted, nil
}

func (e *MFCCExtractor) analyze(buffer []float64) (mimic.FeatureFrame, error) {
	signal := buffer
	if e.dc != nil || e.emphasis != nil {
		copy(e.filtered, buffer)
		signal = e.filtered
		if e.dc != nil {
			e.dc.ProcessTo(signal, signal)
		}
		if e.emphasis != nil {
			e.emphasis.ProcessTo(signal, signal)
		}
	}

	if err := e.window.ApplyTo(e.windowed, signal); err != nil {
		return mimic.FeatureFrame{}, err
	}

	coeffs, err := e.mfcc.Compute(e.fft.MagnitudeSpectrum(e.windowed))
	if err != nil {
		return mimic.FeatureFrame{}, fmt.Errorf("frame %d: %w", e.frames, err)
	}

	// The silence gate works on the raw level.
	rms := common.RMS(buffer)
	at := e.start.Add(e.FrameDuration() * time.Duration(e.frames))
	e.frames++

	if e.frames == 1 {
		e.logger.Debug("First feature frame", logging.Fields{"rms": rms})
	}

	return mimic.FeatureFrame{
		MFCC: coeffs,
		RMS:  rms,
		At:   at,
	}, nil
}

// FrameDuration is the audio time covered by one buffer.
func (e *MFCCExtractor) FrameDuration() time.Duration {
	return time.Duration(float64(e.cfg.BufferSize) / float64(e.cfg.SampleRate) * float64(time.Second))
}

// Frames returns how many frames have been emitted.
func (e *MFCCExtractor) Frames() uint64 {
	return e.frames
}

// Reset drops buffered samples and restarts the frame clock.
func (e *MFCCExtractor) Reset() {
	e.pending = e.pending[:0]
	if e.dc != nil {
		e.dc.Reset()
	}
	if e.emphasis != nil {
		e.emphasis.Reset()
	}
	e.frames = 0
	e.start = time.Now()
}
