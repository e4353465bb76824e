package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
	"github.com/RyanBlaney/sonido-mimic/mimic/extractors"
	"github.com/RyanBlaney/sonido-mimic/nn"
	"github.com/RyanBlaney/sonido-mimic/transcode"
)

type replayOptions struct {
	audio       string
	poses       string
	output      string
	recordUntil time.Duration
	speed       float64
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Record, train and infer over a recorded session",
		Long: `Replay an audio file and a pose log through a session in real time.

Audio is decoded with ffmpeg and cut into MFCC frames; poses are fed at
their timestamps. The session records examples until --record-until, then
pauses playback to train, then predicts landmarks for the rest of the audio.
Predictions are written as JSON lines in pixel space.

Pose log format (one JSON object per line, t in seconds):
  {"t":0.04,"width":600,"height":480,"keypoints":[{"part":"nose","score":0.98,"x":301,"y":122}]}

Example:
  sonido-mimic replay --audio talk.wav --poses talk.jsonl --record-until 45s > predictions.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if opts.speed <= 0 {
				return fmt.Errorf("--speed must be positive, got %g", opts.speed)
			}

			out := cmd.OutOrStdout()
			if opts.output != "" && opts.output != "-" {
				f, err := os.Create(opts.output)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReplay(ctx, cfg, opts, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.audio, "audio", "", "audio file to decode (anything ffmpeg reads)")
	flags.StringVar(&opts.poses, "poses", "", "pose log, JSON lines")
	flags.StringVarP(&opts.output, "output", "o", "", "prediction output file (default stdout)")
	flags.DurationVar(&opts.recordUntil, "record-until", 30*time.Second, "audio position at which recording stops and training starts")
	flags.Float64Var(&opts.speed, "speed", 1, "playback speed multiplier")
	_ = cmd.MarkFlagRequired("audio")
	_ = cmd.MarkFlagRequired("poses")

	return cmd
}

func runReplay(ctx context.Context, cfg config.Config, opts replayOptions, out io.Writer) error {
	logger := logging.WithFields(logging.Fields{
		"component": "replay",
		"audio":     opts.audio,
		"poses":     opts.poses,
	})

	poses, err := loadPoseFile(opts.poses, cfg.Pose.FrameWidth, cfg.Pose.FrameHeight)
	if err != nil {
		return err
	}
	logger.Info("Pose log loaded", logging.Fields{"poses": len(poses)})

	decoderCfg := transcode.DefaultDecoderConfig()
	decoderCfg.TargetSampleRate = cfg.Feature.SampleRate
	decoderCfg.TargetChannels = 1
	decoder := transcode.NewDecoder(decoderCfg)

	clock := newReplayClock(opts.speed)
	renderer := newJSONLRenderer(out, cfg.Pose.FrameWidth, cfg.Pose.FrameHeight, clock.Position)

	session, err := mimic.NewSession(cfg,
		mimic.WithLogger(logging.GetGlobalLogger()),
		mimic.WithRenderer(renderer),
		mimic.WithEpochCallback(func(l nn.EpochLog) {
			logger.Debug("Epoch metrics", logging.Fields{"epoch": l.Epoch, "mse": l.MSE})
		}),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	g, gctx := errgroup.WithContext(ctx)
	// replayCtx ends the scheduler and pose feed once the audio is done.
	replayCtx, endReplay := context.WithCancel(gctx)
	defer endReplay()

	frames := make(chan mimic.FeatureFrame, 64)
	poseCh := make(chan *mimic.PoseResult, 16)

	g.Go(func() error {
		return session.Run(replayCtx)
	})
	g.Go(func() error {
		return session.ConsumeFeatures(gctx, frames)
	})
	g.Go(func() error {
		return ignoreCanceled(session.ConsumePoses(replayCtx, poseCh))
	})
	g.Go(func() error {
		defer close(poseCh)
		for _, p := range poses {
			if err := clock.WaitUntil(replayCtx, p.Offset); err != nil {
				return ignoreCanceled(err)
			}
			renderer.SetFrame(p.Pose.Width, p.Pose.Height)
			select {
			case poseCh <- p.Pose:
			case <-replayCtx.Done():
				return nil
			}
		}
		return nil
	})
	g.Go(func() error {
		defer endReplay()
		defer close(frames)
		return feedAudio(gctx, session, decoder, clock, renderer, cfg, opts, frames, logger)
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() == nil || !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Warn("Replay interrupted")
	}

	stats := session.Stats()
	logger.Info("Replay finished", logging.Fields{
		"examples":       stats.Examples,
		"record_skips":   stats.RecordSkips.Total(),
		"predictions":    stats.Predictions,
		"lines_written":  renderer.Written(),
		"frames":         stats.FramesIngested,
		"poses_ingested": stats.PosesIngested,
	})
	return nil
}

// feedAudio streams the decoded audio at playback pace and switches the
// session from recording to training to inference at --record-until.
func feedAudio(ctx context.Context, session *mimic.Session, decoder *transcode.Decoder, clock *replayClock,
	renderer *jsonlRenderer, cfg config.Config, opts replayOptions, frames chan<- mimic.FeatureFrame, logger logging.Logger) error {

	extractor, err := extractors.NewMFCCExtractor(cfg.Feature, extractors.ChannelSink(ctx, frames))
	if err != nil {
		return err
	}
	if err := session.StartRecording(); err != nil {
		return err
	}

	sampleRate := float64(cfg.Feature.SampleRate)
	samples := 0
	trained := false

	trainAndInfer := func() error {
		session.StopRecording()
		clock.Pause()
		defer clock.Resume()

		model, err := session.Train(ctx)
		if err != nil {
			return fmt.Errorf("training failed: %w", err)
		}
		renderer.SetModel(model.ID)
		trained = true
		return session.StartInference()
	}

	err = decoder.Stream(ctx, opts.audio, cfg.Feature.BufferSize, func(chunk []float64) error {
		samples += len(chunk)
		pos := time.Duration(float64(samples) / sampleRate * float64(time.Second))
		if err := clock.WaitUntil(ctx, pos); err != nil {
			return err
		}
		if _, err := extractor.Write(chunk); err != nil {
			return err
		}

		if !trained && pos >= opts.recordUntil {
			logger.Info("Recording window reached", logging.Fields{
				"position": pos.String(),
				"examples": session.Corpus().Len(),
			})
			return trainAndInfer()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !trained {
		logger.Warn("Audio ended before --record-until, training on what was recorded", logging.Fields{
			"examples": session.Corpus().Len(),
		})
		if err := trainAndInfer(); err != nil {
			return err
		}
	}
	session.StopInference()
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
