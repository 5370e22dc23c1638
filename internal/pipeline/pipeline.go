// Package pipeline assembles the final video: it drives every scene
// through generation, alignment, caption layout and encoding in parallel,
// then joins the results in scene order with crossfades, background music
// and closing credits. The first scene failure cancels everything else.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/script2video/internal/align"
	"github.com/ivlev/script2video/internal/analyzer"
	"github.com/ivlev/script2video/internal/captions"
	"github.com/ivlev/script2video/internal/config"
	"github.com/ivlev/script2video/internal/ffmpeg"
	"github.com/ivlev/script2video/internal/generate"
	"github.com/ivlev/script2video/internal/music"
	"github.com/ivlev/script2video/internal/resource"
	"github.com/ivlev/script2video/internal/retry"
)

// Pipeline wires the collaborators together. All fields except Detector,
// Music and Log are required.
type Pipeline struct {
	Cfg       config.Config
	Script    *config.Script
	Images    generate.ImageGenerator
	Speech    generate.SpeechSynthesizer
	Music     *music.Source
	Aligner   *align.Engine
	Detector  analyzer.Detector
	Runner    ffmpeg.Runner
	Resources *resource.Manager
	// Probe measures audio durations; defaults to ffmpeg.ProbeDuration.
	Probe func(ctx context.Context, path string) (float64, error)
	Log   *slog.Logger
}

func (p *Pipeline) validate() error {
	switch {
	case p.Script == nil:
		return errors.New("pipeline: no script")
	case p.Images == nil:
		return errors.New("pipeline: no image backend")
	case p.Speech == nil:
		return errors.New("pipeline: no speech backend")
	case p.Aligner == nil:
		return errors.New("pipeline: no aligner")
	case p.Runner == nil:
		return errors.New("pipeline: no ffmpeg runner")
	case p.Resources == nil:
		return errors.New("pipeline: no resource manager")
	}
	return nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

func (p *Pipeline) probe() func(ctx context.Context, path string) (float64, error) {
	if p.Probe != nil {
		return p.Probe
	}
	return ffmpeg.ProbeDuration
}

func (p *Pipeline) policy() retry.Policy {
	pol := retry.New(p.Cfg.MaxAttempts, p.Cfg.BaseDelay)
	pol.Log = p.logger()
	return pol
}

// Run produces the final video and returns its path. On failure the
// returned error is a *SceneError when a scene caused it; partial files
// are left in the run directory for inspection.
func (p *Pipeline) Run(ctx context.Context) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	style, err := p.captionStyle()
	if err != nil {
		return "", err
	}

	runDir := filepath.Join(p.Cfg.OutputDir, time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	p.logger().Info("run started", "dir", runDir, "scenes", len(p.Script.Scenes), "captions", string(style))

	segments := make([]*Segment, len(p.Script.Scenes))
	for i, sc := range p.Script.Scenes {
		segments[i] = &Segment{Index: i, Scene: sc}
	}

	var musicPath, creditsAudio string
	g, gctx := errgroup.WithContext(ctx)
	for _, seg := range segments {
		g.Go(func() error {
			if err := p.processSegment(gctx, seg, style, runDir); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				seg.State = StateFailed
				return &SceneError{Scene: seg.Index, Err: err}
			}
			return nil
		})
	}
	if p.Music != nil && p.Script.BackgroundMusic != nil {
		g.Go(func() error {
			var err error
			musicPath, err = p.Music.Resolve(gctx, p.Script.BackgroundMusic,
				music.EstimateDuration(p.Script), filepath.Join(runDir, "music.mp3"))
			if err != nil {
				return fmt.Errorf("background music: %w", err)
			}
			return nil
		})
	}
	if p.Music != nil && p.Script.ClosingCredits != nil {
		g.Go(func() error {
			var err error
			creditsAudio, err = p.Music.Resolve(gctx, p.Script.ClosingCredits,
				creditsAudioSeconds, filepath.Join(runDir, "credits.mp3"))
			if err != nil {
				return fmt.Errorf("closing credits: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	final, err := p.assemble(ctx, segments, musicPath, creditsAudio, runDir)
	if err != nil {
		return "", err
	}
	for _, seg := range segments {
		seg.State = StateMerged
	}
	p.cleanup(segments, runDir, final)
	p.logger().Info("run finished", "video", final)
	return final, nil
}

const creditsAudioSeconds = 30

func (p *Pipeline) captionStyle() (captions.Style, error) {
	s := p.Script.CaptionStyle
	if p.Cfg.CaptionStyle != "" {
		s = p.Cfg.CaptionStyle
	}
	return captions.ParseStyle(s)
}

// processSegment walks one scene through the state machine. Every stage
// starts with a context check so cancelled runs stop before the next
// external call.
func (p *Pipeline) processSegment(ctx context.Context, seg *Segment, style captions.Style, runDir string) error {
	log := p.logger().With("scene", seg.Index)
	pol := p.policy()

	advance := func(s State) {
		seg.State = s
		log.Debug("segment state", "state", s.String())
	}

	// image
	if err := ctx.Err(); err != nil {
		return err
	}
	imagePath := filepath.Join(runDir, fmt.Sprintf("scene-%02d.png", seg.Index))
	if p.Cfg.SkipGeneration {
		if _, err := (generate.Blank{Width: p.Cfg.Width, Height: p.Cfg.Height}).Generate(ctx, seg.Scene.Text, "", imagePath); err != nil {
			return fmt.Errorf("blank image: %w", err)
		}
	} else {
		_, err := retry.DoValue(ctx, pol, "image", func(ctx context.Context) (string, error) {
			return p.Images.Generate(ctx, seg.Scene.Text, p.Script.SceneStyle(seg.Index), imagePath)
		})
		if err != nil {
			return fmt.Errorf("image generation: %w", err)
		}
	}
	seg.ImagePath = imagePath
	advance(StateImageReady)

	// narration
	if err := ctx.Err(); err != nil {
		return err
	}
	audioPath := filepath.Join(runDir, fmt.Sprintf("scene-%02d.mp3", seg.Index))
	_, err := retry.DoValue(ctx, pol, "speech", func(ctx context.Context) (string, error) {
		return p.Speech.Synthesize(ctx, seg.Scene.Text, audioPath)
	})
	if err != nil {
		return fmt.Errorf("speech synthesis: %w", err)
	}
	seg.AudioPath = audioPath
	if seg.Duration, err = p.probe()(ctx, audioPath); err != nil {
		return fmt.Errorf("probing narration: %w", err)
	}
	advance(StateAudioReady)

	// word alignment
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := p.Aligner.Align(ctx, audioPath, seg.Scene.Text)
	if err != nil {
		return err
	}
	seg.Words, seg.Degraded = res.Words, res.Degraded
	if res.Degraded {
		log.Warn("alignment degraded, captions use uniform timing")
	}
	advance(StateAligned)

	// caption layout
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := loadImage(imagePath)
	if err != nil {
		return fmt.Errorf("reading scene image: %w", err)
	}
	if p.Detector != nil {
		if seg.ROIs, err = p.Detector.Detect(img); err != nil {
			return fmt.Errorf("roi detection: %w", err)
		}
	}
	frame := image.Pt(p.Cfg.Width, p.Cfg.Height)
	seg.Windows, err = captions.Layout(seg.Words, style, seg.ROIs, frame, captions.Options{FontSize: p.Cfg.FontSize})
	if err != nil {
		return fmt.Errorf("caption layout: %w", err)
	}
	advance(StateCaptionsReady)

	// encode
	if err := ctx.Err(); err != nil {
		return err
	}
	textColor := ""
	if len(seg.Windows) > 0 {
		textColor = captions.TextColor(img, seg.Windows[0].Rect)
	}
	videoPath := filepath.Join(runDir, fmt.Sprintf("seg-%02d.mp4", seg.Index))
	op := ffmpeg.SegmentOp(imagePath, audioPath, videoPath, ffmpeg.SegmentParams{
		Width:     p.Cfg.Width,
		Height:    p.Cfg.Height,
		FPS:       p.Cfg.FPS,
		Duration:  seg.Duration,
		Encoder:   p.Cfg.VideoEncoder,
		Quality:   p.Cfg.Quality,
		Motion:    !p.Cfg.SkipGeneration,
		TextColor: textColor,
	}, seg.Windows)
	if err := p.runWithThreads(ctx, op); err != nil {
		return err
	}
	seg.VideoPath = videoPath
	advance(StateEncoded)
	return nil
}

// runWithThreads runs one ffmpeg operation under a thread grant.
func (p *Pipeline) runWithThreads(ctx context.Context, op ffmpeg.Operation) error {
	grant, err := p.Resources.Acquire(ctx, 0)
	if err != nil {
		return err
	}
	defer grant.Release()
	op.Threads = grant.Threads
	return p.Runner.Run(ctx, op)
}

// assemble joins encoded segments in scene order, then layers music and
// credits on top when the script asks for them.
func (p *Pipeline) assemble(ctx context.Context, segments []*Segment, musicPath, creditsAudio, runDir string) (string, error) {
	paths := make([]string, len(segments))
	durations := make([]float64, len(segments))
	for i, seg := range segments {
		paths[i] = seg.VideoPath
		durations[i] = seg.Duration
	}
	total := ffmpeg.ConcatDuration(durations, p.Cfg.TransitionType, p.Cfg.FadeDuration)

	current := filepath.Join(runDir, "story.mp4")
	op, err := ffmpeg.ConcatOp(paths, current, ffmpeg.ConcatParams{
		Transition: p.Cfg.TransitionType,
		Fade:       p.Cfg.FadeDuration,
		Durations:  durations,
		Encoder:    p.Cfg.VideoEncoder,
		Quality:    p.Cfg.Quality,
	})
	if err != nil {
		return "", err
	}
	if err := p.runWithThreads(ctx, op); err != nil {
		return "", err
	}

	if musicPath != "" {
		mixed := filepath.Join(runDir, "story-music.mp4")
		if err := p.runWithThreads(ctx, ffmpeg.MusicMixOp(current, musicPath, mixed, total, p.Cfg.MusicVolume)); err != nil {
			return "", err
		}
		current = mixed
	}

	if creditsAudio != "" {
		trailer, err := p.renderCredits(ctx, creditsAudio, runDir)
		if err != nil {
			return "", err
		}
		joined := filepath.Join(runDir, "story-credits.mp4")
		if err := p.runWithThreads(ctx, ffmpeg.AppendOp(current, trailer, joined, p.segmentParams(0))); err != nil {
			return "", err
		}
		current = joined
	}

	final := filepath.Join(runDir, "final.mp4")
	if err := os.Rename(current, final); err != nil {
		return "", fmt.Errorf("placing final video: %w", err)
	}
	return final, nil
}

func (p *Pipeline) renderCredits(ctx context.Context, creditsAudio, runDir string) (string, error) {
	card, err := generate.CreditsCard(filepath.Join(runDir, "credits.png"),
		p.Script.Title, p.Script.CreditsLink, p.Cfg.Width, p.Cfg.Height)
	if err != nil {
		return "", fmt.Errorf("credits card: %w", err)
	}
	trailer := filepath.Join(runDir, "credits.mp4")
	if err := p.runWithThreads(ctx, ffmpeg.CreditsOp(card, creditsAudio, trailer, p.segmentParams(0))); err != nil {
		return "", err
	}
	return trailer, nil
}

func (p *Pipeline) segmentParams(duration float64) ffmpeg.SegmentParams {
	return ffmpeg.SegmentParams{
		Width:    p.Cfg.Width,
		Height:   p.Cfg.Height,
		FPS:      p.Cfg.FPS,
		Duration: duration,
		Encoder:  p.Cfg.VideoEncoder,
		Quality:  p.Cfg.Quality,
	}
}

// cleanup drops intermediate segment files once the final video exists.
// Scene images and narration stay for inspection.
func (p *Pipeline) cleanup(segments []*Segment, runDir, final string) {
	for _, seg := range segments {
		if seg.VideoPath != "" && seg.VideoPath != final {
			os.Remove(seg.VideoPath)
		}
	}
	for _, name := range []string{"story.mp4", "story-music.mp4", "story-credits.mp4", "story.mp4.txt"} {
		path := filepath.Join(runDir, name)
		if path != final {
			os.Remove(path)
		}
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
