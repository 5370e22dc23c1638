package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ivlev/script2video/internal/align"
	"github.com/ivlev/script2video/internal/analyzer"
	"github.com/ivlev/script2video/internal/config"
	"github.com/ivlev/script2video/internal/ffmpeg"
	"github.com/ivlev/script2video/internal/generate"
	"github.com/ivlev/script2video/internal/music"
	"github.com/ivlev/script2video/internal/pipeline"
	"github.com/ivlev/script2video/internal/resource"
	"github.com/ivlev/script2video/internal/retry"
	"github.com/ivlev/script2video/internal/system"
)

var buildVersion = "dev"

func main() {
	cfg := config.Default()
	cfg.BuildVersion = buildVersion

	scriptPath := flag.String("script", "", "path to the scene script (YAML or JSON)")
	flag.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "output directory (a timestamped run dir is created inside)")
	flag.IntVar(&cfg.Width, "width", cfg.Width, "video width")
	flag.IntVar(&cfg.Height, "height", cfg.Height, "video height")
	flag.IntVar(&cfg.FPS, "fps", cfg.FPS, "frames per second")
	flag.Float64Var(&cfg.FadeDuration, "fade", cfg.FadeDuration, "crossfade duration in seconds (0 disables)")
	flag.StringVar(&cfg.TransitionType, "transition", cfg.TransitionType, "xfade transition type")
	flag.IntVar(&cfg.Quality, "quality", cfg.Quality, "encoder quality (CRF for libx264)")
	flag.StringVar(&cfg.CaptionStyle, "captions", "", "caption style override: static or dynamic")
	flag.StringVar(&cfg.DetectorName, "detector", cfg.DetectorName, "caption ROI detector: contrast or none")
	flag.IntVar(&cfg.FontSize, "font-size", cfg.FontSize, "caption font size")
	flag.Float64Var(&cfg.MusicVolume, "music-volume", cfg.MusicVolume, "background music volume 0..1")
	flag.BoolVar(&cfg.SkipGeneration, "skip-generation", false, "use blank scene images instead of the image backend")
	flag.IntVar(&cfg.MaxAttempts, "attempts", cfg.MaxAttempts, "attempts per generation call")
	threads := flag.Int("threads", 0, "total ffmpeg thread budget (0 = detect)")
	verbose := flag.Bool("v", false, "debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("script2video %s\n", buildVersion)
		return
	}
	if *scriptPath == "" {
		fmt.Println("[!] -script is required")
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env")
	}

	fmt.Printf("[*] script2video %s\n", buildVersion)
	system.InitResourceLimits(log)

	cfg.ScriptPath = *scriptPath
	script, err := config.LoadScript(*scriptPath)
	if err != nil {
		fmt.Printf("[!] %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("[*] Script: %q, %d scenes\n", script.Title, len(script.Scenes))

	if cfg.VideoEncoder == "" {
		cfg.VideoEncoder = system.BestH264Encoder()
		fmt.Printf("[*] Encoder: %s\n", cfg.VideoEncoder)
	}

	detector, err := analyzer.New(cfg.DetectorName)
	if err != nil {
		fmt.Printf("[!] %v\n", err)
		os.Exit(1)
	}

	var resources *resource.Manager
	if *threads > 0 {
		resources = resource.NewFixed(*threads, log)
	} else {
		if resources, err = resource.NewManager(1, log); err != nil {
			fmt.Printf("[!] %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("[*] Thread budget: %d\n", resources.Budget())

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" && !cfg.SkipGeneration {
		fmt.Println("[!] OPENAI_API_KEY is not set (use -skip-generation for a dry run)")
		os.Exit(1)
	}

	policy := retry.New(cfg.MaxAttempts, cfg.BaseDelay)
	policy.Log = log

	aligner := &align.Engine{
		Probe: ffmpeg.ProbeDuration,
		Retry: policy,
		Log:   log,
	}
	if apiKey != "" {
		aligner.Provider = generate.NewOpenAITranscriber(apiKey)
	} else {
		fmt.Println("[-] No transcription provider, caption timing will be uniform")
	}

	var musicSource *music.Source
	if script.BackgroundMusic != nil || script.ClosingCredits != nil {
		musicSource = &music.Source{
			Probe: ffmpeg.ProbeDuration,
			Retry: policy,
			Log:   log,
		}
		if url := os.Getenv("MUSIC_API_URL"); url != "" {
			musicSource.Gen = generate.NewHTTPMusic(url, os.Getenv("MUSIC_API_KEY"))
		}
	}

	p := &pipeline.Pipeline{
		Cfg:       cfg,
		Script:    script,
		Images:    generate.NewOpenAIImages(apiKey),
		Speech:    generate.NewOpenAISpeech(apiKey),
		Music:     musicSource,
		Aligner:   aligner,
		Detector:  detector,
		Runner:    &ffmpeg.Exec{},
		Resources: resources,
		Log:       log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	final, err := p.Run(ctx)
	if err != nil {
		fmt.Printf("[!] Assembly failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("[+++] Done in %s: %s\n", time.Since(start).Round(time.Second), final)
}
