package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/app"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/backend"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/config"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/device"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/identity"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/logging"
)

var (
	logger  zerolog.Logger
	cfg     *config.Config
	envFile string
	reset   bool
)

var rootCmd = &cobra.Command{
	Use:           "medusa-player",
	Short:         "Medusa digital signage player",
	Long:          "Medusa player pairs a screen with the Medusa console and plays its assigned playlists.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the player",
	Long:  "Register or pair the device, play its content and serve the local API for the renderer",
	RunE:  runPlayer,
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the device identifier",
	RunE:  runIdentity,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the media cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached media files",
	RunE:  runCacheList,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cached media file",
	RunE:  runCachePurge,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional file of environment variables")
	identityCmd.Flags().BoolVar(&reset, "reset", false, "forget the identifier so the device registers as new")

	cacheCmd.AddCommand(cacheListCmd, cachePurgeCmd)
	rootCmd.AddCommand(runCmd, identityCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = LoadEnvironment(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runPlayer(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, release, err := InitIdentity(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	deviceID, err := identity.Ensure(ctx, store)
	if err != nil {
		return err
	}
	logger = logger.With().Str("deviceId", deviceID).Logger()
	logger.Info().Str("api", cfg.APIURL).Msg("medusa player starting")

	client := backend.NewClient(cfg.APIURL, nil, logger)
	cache, conn, err := InitCache(cfg, client, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	player := app.New(app.Options{
		DeviceID:          deviceID,
		ConsoleURL:        cfg.ConsoleURL,
		SocketURL:         cfg.SocketURL,
		SocketNamespace:   cfg.SocketNamespace,
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SplashDuration:    cfg.SplashDuration,
		MQTTBrokerURL:     cfg.MQTTBrokerURL,
	}, client, cache, device.NewCollector(cfg.CacheDir, logger), device.NetworkUp, logger)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if err := RegisterRoutes(r, cfg, player); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}
	httpServer := &http.Server{Addr: cfg.ListenAddress, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddress).Msg("local API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("local API stopped")
			stop()
		}
	}()

	runErr := player.Run(ctx)

	logger.Info().Msg("shutting down gracefully...")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("medusa player stopped")
	return runErr
}

func runIdentity(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	store, release, err := InitIdentity(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	if reset {
		if err := identity.Reset(cmd.Context(), store); err != nil {
			return fmt.Errorf("reset device identifier: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "device identifier cleared")
		return nil
	}

	id, err := identity.Ensure(cmd.Context(), store)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runCacheList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	cache, conn, err := InitCache(cfg, backend.NewClient(cfg.APIURL, nil, logger), logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	entries, err := cache.List()
	if err != nil {
		return fmt.Errorf("list cache: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MEDIA\tSOURCE\tSIZE\tCACHED\tPATH")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", e.MediaID, e.Source, e.Size, e.CreatedAt.Format(time.RFC3339), e.Path)
	}
	return w.Flush()
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	cache, conn, err := InitCache(cfg, backend.NewClient(cfg.APIURL, nil, logger), logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	n, err := cache.Purge()
	if err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached files\n", n)
	return nil
}
