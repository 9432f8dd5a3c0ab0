package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/calder/lectio/internal/api"
	"github.com/calder/lectio/internal/auth"
	"github.com/calder/lectio/internal/config"
	"github.com/calder/lectio/internal/log"
	"github.com/calder/lectio/internal/service"
	"github.com/calder/lectio/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	// Handle version flag
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("lectio %s\n", Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := log.Setup(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.Null()
	}
	slog.SetDefault(logger)

	logger.Info("starting lectio", "version", Version)

	creds := auth.NewFileStore(filepath.Join(config.DefaultConfigPath(), "credentials.json"))
	coordinator := auth.NewCoordinator(cfg.Client.RefreshWindow, logger)
	events := auth.NewSessionEvents()

	// Check if configured
	if !cfg.IsConfigured() {
		return runSetupFlow(cfg, creds, coordinator, events, logger)
	}

	client := api.NewClient(cfg.Server.URL, creds, coordinator, events, cfg.Client, cfg.Server.DeviceID, logger)

	progressStore, err := store.NewProgressStore(config.DefaultDataPath())
	if err != nil {
		return fmt.Errorf("failed to open progress store: %w", err)
	}
	defer progressStore.Close()

	syncer := service.NewSyncer(client, progressStore, client, cfg.Sync.PageLimit, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	expired := events.Subscribe()
	defer events.Unsubscribe(expired)

	if err := runSyncLoop(ctx, syncer, cfg.Sync.Interval, expired, logger); err != nil {
		return err
	}

	logger.Info("shutting down")
	return nil
}

// runSyncLoop performs an immediate full sync, then repeats on the
// configured interval until interrupted or the session expires
func runSyncLoop(ctx context.Context, syncer *service.Syncer, interval time.Duration, expired chan auth.SessionExpiredReason, logger *slog.Logger) error {
	sync := func() {
		result, err := syncer.FullSync(ctx)
		if err != nil {
			logger.Warn("sync failed", "error", err)
			fmt.Printf("Sync failed: %v\n", err)
			return
		}
		fmt.Printf("Synced: %d uploaded, %d downloaded, %d merged, %d failed\n",
			result.Uploaded, result.Downloaded, result.Merged, result.Failed)
	}

	sync()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-expired:
			logger.Info("session expired", "reason", reason)
			fmt.Println("Your session has expired. Please run lectio again to log in.")
			return nil
		case <-ticker.C:
			sync()
		}
	}
}

// runSetupFlow handles the initial setup when not configured
func runSetupFlow(cfg *config.Config, creds auth.Store, coordinator *auth.Coordinator, events *auth.SessionEvents, logger *slog.Logger) error {
	fmt.Println()
	fmt.Println("Welcome to Lectio!")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	var serverURL string
	for {
		fmt.Print("Enter your server URL (e.g., https://reader.example.com): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		serverURL = strings.TrimRight(strings.TrimSpace(input), "/")

		if serverURL == "" {
			fmt.Println("Server URL cannot be empty. Please try again.")
			continue
		}
		break
	}

	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	cfg.Server.URL = serverURL
	client := api.NewClient(serverURL, creds, coordinator, events, cfg.Client, cfg.Server.DeviceID, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Login(ctx, email, string(password)); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Logged in and configuration saved!")
	fmt.Println()
	fmt.Println("Run lectio again to start syncing.")

	return nil
}
