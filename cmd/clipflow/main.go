package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"clipflow/internal/api"
	"clipflow/internal/config"
	"clipflow/internal/publish"
	"clipflow/internal/scheduler"
	"clipflow/internal/store"
	"clipflow/internal/synth"
)

func main() {
	var (
		addr    = flag.String("addr", ":8080", "HTTP bind address")
		dbPath  = flag.String("db", "clipflow.db", "SQLite DB path")
		cfgPath = flag.String("config", "config.yaml", "YAML config path")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using process environment")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	repo := store.NewSQLite(db)
	if n, err := repo.FailStaleProcessing(context.Background(), cfg.Scheduler.ReclaimAge()); err == nil && n > 0 {
		log.Warn().Int("count", n).Msg("failed jobs left processing by a previous run")
	}

	sampler := synth.NewFFmpegSampler(cfg.Paths.FramesDir)
	model := synth.NewGroqModel(os.Getenv("GROQ_API_KEY"), cfg.Model.Name, cfg.Model.BaseURL)
	synthesizer := synth.New(sampler, model, synth.Options{
		MaxAttempts:   cfg.Model.MaxAttempts,
		TitleMaxChars: cfg.Model.TitleMaxChars,
		DescMaxChars:  cfg.Model.DescMaxChars,
		MinTitleChars: cfg.Model.MinTitleChars,
		ThumbnailDir:  cfg.Paths.ThumbnailDir,
	})

	yt := publish.NewYouTube(os.Getenv("YOUTUBE_CLIENT_ID"), os.Getenv("YOUTUBE_CLIENT_SECRET"))
	yt.CategoryID = cfg.Upload.CategoryID
	yt.Privacy = cfg.Upload.Privacy
	yt.Language = cfg.Upload.Language
	publisher := publish.New(repo, repo, yt, yt, cfg.Paths.PostedDir, cfg.Paths.InboxDir)

	pregen := scheduler.NewPregenService(repo, synthesizer, cfg.Scheduler.Lead(), cfg.Scheduler.PregenInterval())
	publishLoop := scheduler.NewPublishService(repo, publisher, scheduler.PublishOptions{
		EarlyBound: cfg.Scheduler.EarlyBound(),
		LateBound:  cfg.Scheduler.LateBound(),
		Interval:   cfg.Scheduler.PublishInterval(),
		Workers:    cfg.Scheduler.PublishWorkers,
		ReclaimAge: cfg.Scheduler.ReclaimAge(),
	})
	templates := scheduler.NewTemplateService(repo, repo, repo, cfg.Scheduler.TemplateInterval())

	ctx, cancel := context.WithCancel(context.Background())
	go pregen.Start(ctx)
	go publishLoop.Start(ctx)
	go templates.Start(ctx)

	srv := &http.Server{Addr: *addr, Handler: api.NewServer(repo, repo, repo)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
