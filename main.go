package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func disableCaching(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Cache-Control", "no-cache")

		next.ServeHTTP(w, r)
	})
}

// startSpectatorServer runs the hub and serves it on addr until ctx is done.
func startSpectatorServer(ctx context.Context, addr string, h *Hub) *http.Server {
	h.start()

	var handler http.Handler = disableCaching(newSpectatorMux(h))
	if appLogger != nil && appLogger.logRequests {
		handler = &LoggingHandler{Handler: handler, Logger: appLogger}
	}
	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		log.Printf("Spectator feed on ws://%s/ws", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logError("spectator server", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	return server
}

func printResult(w io.Writer, result GameResult) {
	fmt.Fprintf(w, "\nGame %s finished after %d rounds. Winner: %s\n", result.GameID, result.Rounds, result.WinningTeam)
	fmt.Fprintln(w, "Survivors:")
	for _, p := range result.AlivePlayers {
		fmt.Fprintf(w, "  %-8s %s\n", p.Name, Role{Kind: p.Role}.Name())
	}
	fmt.Fprintln(w, "Fallen:")
	for _, p := range result.DeadPlayers {
		fmt.Fprintf(w, "  %-8s %-9s %s\n", p.Name, Role{Kind: p.Role}.Name(), p.DeathReason)
	}
}

func run(ctx context.Context, cfg AppConfig) error {
	provider, err := newDecisionProvider(cfg)
	if err != nil {
		return fmt.Errorf("decision provider: %w", err)
	}

	game := NewGame(provider, cfg.toGameConfig())
	log.Printf("Game %s: provider=%s model=%s seed=%d", game.ID, cfg.Provider, cfg.Model, cfg.Seed)

	if cfg.GameLogDir != "" {
		t, path, err := openTranscript(cfg.GameLogDir, game.ID)
		if err != nil {
			return err
		}
		defer t.Close()
		game.AddObserver(t)
		log.Printf("Transcript: %s", path)
	}

	if cfg.DB != "" {
		a, err := openArchive(cfg.DB)
		if err != nil {
			return err
		}
		defer a.Close()
		devDB = a.db
		game.AddObserver(a)
		LogDBState(a.db, "after initDB")
	}

	if cfg.SpectatorAddr != "" {
		h := newHub()
		serverCtx, cancel := context.WithCancel(ctx)
		startSpectatorServer(serverCtx, cfg.SpectatorAddr, h)
		defer func() {
			cancel()
			h.stop()
		}()
		game.AddObserver(h)
	}

	if err := game.InitializeGame(cfg.Players); err != nil {
		return err
	}

	result, err := game.Run(ctx)
	if err != nil {
		return err
	}
	printResult(os.Stdout, result)

	if cfg.Dev {
		out, _ := json.MarshalIndent(result, "", "  ")
		log.Printf("Result: %s", out)
	}
	return nil
}

func main() {
	fv := registerFlags(flag.CommandLine)
	flag.Parse()

	// Set up logging to both stdout and file
	logFile, err := os.OpenFile("werewolf.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	cfg := loadConfig(*fv.configPath, *fv.envPath)
	fv.applyTo(flag.CommandLine, &cfg)
	devMode = cfg.Dev

	if err := InitAppLogger(cfg.toLogConfig()); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer CloseAppLogger()

	if appLogger.IsEnabled() {
		log.Println("Extended logging enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("Simulation failed: %v", err)
		stop()
		CloseAppLogger()
		logFile.Close()
		os.Exit(1)
	}
}
