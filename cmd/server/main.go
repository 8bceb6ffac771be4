package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/notetree/internal/api"
	"github.com/dgallion1/notetree/internal/config"
	"github.com/dgallion1/notetree/internal/logging"
	"github.com/dgallion1/notetree/internal/parser"
	"github.com/dgallion1/notetree/internal/store"
)

const usage = `usage:
  notetree-server              run the HTTP server
  notetree-server token OWNER [TTL]
                               print a bearer token for OWNER (TTL e.g. 720h, default no expiry)`

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel), os.Stdout)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "token":
			os.Exit(issueToken(cfg, os.Args[2:]))
		case "-h", "--help", "help":
			fmt.Println(usage)
			return
		default:
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
	}

	if err := run(cfg, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func issueToken(cfg config.Config, args []string) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	var ttl time.Duration
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid TTL %q: %v\n", args[1], err)
			return 2
		}
		ttl = d
	}
	tok, err := api.IssueToken([]byte(cfg.AuthSecret), args[0], ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		return 1
	}
	fmt.Println(tok)
	return 0
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, store.Options{
		DataDir:        cfg.DataDir,
		Logger:         log,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Parser:         parser.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext},
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sweeper := store.NewSweeper(st, cfg.SweepInterval)
	sweeper.Start(ctx)

	srv := api.NewServer(st, sweeper, log, cfg)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		sweeper.Stop()
	}()

	log.Info("starting notetree", "port", cfg.Port, "data_dir", cfg.DataDir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	<-done
	return nil
}
