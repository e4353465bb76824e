package extractors

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
)

func init() {
	logging.SetGlobalLogger(nil)
}

func sine(n, sampleRate int, freq, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestMFCCExtractorEmitsOneFramePerBuffer(t *testing.T) {
	cfg := config.DefaultFeatureConfig()
	var frames []mimic.FeatureFrame
	ex, err := NewMFCCExtractor(cfg, func(f mimic.FeatureFrame) { frames = append(frames, f) })
	require.NoError(t, err)

	pcm := sine(3*cfg.BufferSize+100, cfg.SampleRate, 440, 0.5)

	// split writes across buffer boundaries
	n1, err := ex.Write(pcm[:700])
	require.NoError(t, err)
	n2, err := ex.Write(pcm[700:])
	require.NoError(t, err)

	assert.Equal(t, 0, n1)
	assert.Equal(t, 3, n2)
	require.Len(t, frames, 3)
	assert.Equal(t, uint64(3), ex.Frames())

	for _, f := range frames {
		assert.Len(t, f.MFCC, cfg.Coefficients)
		for _, c := range f.MFCC {
			assert.False(t, math.IsNaN(c) || math.IsInf(c, 0))
		}
		assert.InDelta(t, 0.5/math.Sqrt2, f.RMS, 0.02)
	}
	assert.Equal(t, ex.FrameDuration(), frames[1].At.Sub(frames[0].At))
}

func TestMFCCExtractorSilenceAndTone(t *testing.T) {
	cfg := config.DefaultFeatureConfig()
	var frames []mimic.FeatureFrame
	ex, err := NewMFCCExtractor(cfg, func(f mimic.FeatureFrame) { frames = append(frames, f) })
	require.NoError(t, err)

	_, err = ex.Write(make([]float64, cfg.BufferSize))
	require.NoError(t, err)
	_, err = ex.Write(sine(cfg.BufferSize, cfg.SampleRate, 1000, 0.8))
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Zero(t, frames[0].RMS)
	for _, c := range frames[0].MFCC {
		assert.InDelta(t, 0, c, 1e-12)
	}
	assert.Greater(t, frames[1].MFCC[0], 0.0)
}

func TestMFCCExtractorReset(t *testing.T) {
	cfg := config.DefaultFeatureConfig()
	count := 0
	ex, err := NewMFCCExtractor(cfg, func(mimic.FeatureFrame) { count++ })
	require.NoError(t, err)

	_, err = ex.Write(make([]float64, cfg.BufferSize-1))
	require.NoError(t, err)
	ex.Reset()
	_, err = ex.Write(make([]float64, 1))
	require.NoError(t, err)

	assert.Zero(t, count)
}

func TestNewMFCCExtractorRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultFeatureConfig()
	_, err := NewMFCCExtractor(cfg, nil)
	assert.Error(t, err)

	cfg.Coefficients = 40
	_, err = NewMFCCExtractor(cfg, func(mimic.FeatureFrame) {})
	assert.Error(t, err)
}

func TestChannelSinkStopsOnCancel(t *testing.T) {
	ch := make(chan mimic.FeatureFrame)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		ChannelSink(ctx, ch)(mimic.FeatureFrame{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sink blocked after cancel")
	}
}

func TestSessionSinkFillsWindow(t *testing.T) {
	cfg := config.Default()
	cfg.Session.WindowCapacity = 4
	s, err := mimic.NewSession(cfg)
	require.NoError(t, err)
	defer s.Close()

	ex, err := NewMFCCExtractor(cfg.Feature, SessionSink(s))
	require.NoError(t, err)

	_, err = ex.Write(sine(4*cfg.Feature.BufferSize, cfg.Feature.SampleRate, 300, 0.3))
	require.NoError(t, err)

	assert.True(t, s.Window().Full())
	assert.InDelta(t, 0.3/math.Sqrt2, s.Stats().LastRMS, 0.02)
}

func TestMFCCExtractorConditioning(t *testing.T) {
	plain := config.DefaultFeatureConfig()
	conditioned := plain
	conditioned.PreEmphasis = 0.97
	conditioned.DCCutoffHz = 20

	pcm := sine(plain.BufferSize, plain.SampleRate, 440, 0.3)
	for i := range pcm {
		pcm[i] += 0.2
	}

	run := func(cfg config.FeatureConfig) mimic.FeatureFrame {
		var got mimic.FeatureFrame
		ex, err := NewMFCCExtractor(cfg, func(f mimic.FeatureFrame) { got = f })
		require.NoError(t, err)
		_, err = ex.Write(pcm)
		require.NoError(t, err)
		return got
	}

	a, b := run(plain), run(conditioned)
	assert.Equal(t, a.RMS, b.RMS, "level is measured before conditioning")
	assert.NotEqual(t, a.MFCC, b.MFCC)

	bad := plain
	bad.PreEmphasis = 1.5
	_, err := NewMFCCExtractor(bad, func(mimic.FeatureFrame) {})
	assert.Error(t, err)
}
