package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raine/tix-seo-studio/config"
	"github.com/raine/tix-seo-studio/internal/history"
	"github.com/raine/tix-seo-studio/internal/llm"
	"github.com/raine/tix-seo-studio/internal/media"
	"github.com/raine/tix-seo-studio/internal/policy"
	"github.com/raine/tix-seo-studio/internal/storage"
	"github.com/raine/tix-seo-studio/internal/studio"
	"github.com/raine/tix-seo-studio/internal/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

const (
	logFileName     = "tix-seo-studio.log"
	shutdownTimeout = 15 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.LoadEnvFile()

	if missing := config.MissingRequired(); len(missing) > 0 {
		if isInteractiveTerminal() {
			if !runSetupWizard() {
				waitOnWindows()
				os.Exit(1)
			}
		} else {
			fatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	// JOURNAL_STREAM is set by systemd; journald keeps the logs there.
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	cfg, err := config.Load()
	if err != nil {
		fatalWithWait("invalid configuration: %v", err)
	}

	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		fatalWithWait("failed to load policy: %v", err)
	}
	log.Info().Str("version", pol.Version).Str("textModel", pol.Models.Text).Msg("generation policy loaded")

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fatalWithWait("failed to initialize store: %v", err)
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("store initialized")

	memory, err := history.NewMemory(store)
	if err != nil {
		fatalWithWait("failed to load history: %v", err)
	}

	listingLog, err := web.NewListingLog(cfg.LogDir)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize listing log")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	models, err := llm.NewGenAIModels(ctx, cfg.GeminiAPIKey)
	if err != nil {
		fatalWithWait("%v", err)
	}

	opts := []llm.Option{
		llm.WithTextTimeout(cfg.GenerationTimeout),
		llm.WithImageTimeout(cfg.ImageTimeout),
	}
	if cfg.VisionProvider == "openai" {
		opts = append(opts, llm.WithVisualAnalyzer(llm.NewOpenAIVision(cfg.OpenAIAPIKey, pol.VisionPrompt)))
	}
	client := llm.NewGeminiClient(models, pol, opts...)
	log.Info().Str("visionProvider", cfg.VisionProvider).Msg("gemini client initialized")

	srv, err := web.New(web.Deps{
		Service:       web.NewListingService(memory, client, listingLog),
		Memory:        memory,
		Studio:        studio.New(client, pol.Studio),
		Images:        media.NewDownloader(),
		RatePerMinute: cfg.RatePerMinute,
		RateBurst:     cfg.RateBurst,
	})
	if err != nil {
		fatalWithWait("failed to initialize web server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}
