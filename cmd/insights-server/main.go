package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/respira/insights/internal/config"
	"github.com/respira/insights/internal/domain/dataset"
	"github.com/respira/insights/internal/domain/insights"
	"github.com/respira/insights/internal/platform/auth"
	"github.com/respira/insights/internal/platform/db"
	"github.com/respira/insights/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "insights-server",
		Short: "Asthma cohort insights API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(analyzeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the insights API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func analyzeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the full analysis over an export file and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the JSON export")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// The upload archive is optional; without a database the service is
	// fully functional but keeps nothing across restarts.
	ctx := context.Background()
	var archive dataset.Archive
	var healthDB echo.HandlerFunc
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := dataset.EnsureArchiveSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare archive schema")
		}
		archive = dataset.NewArchivePG(pool)
		healthDB = db.HealthHandler(pool)
		logger.Info().Msg("upload archive enabled")
	}

	norm := dataset.NewNormalizer(cfg.NaiveLocation())
	dataSvc := dataset.NewService(dataset.NewStore(), archive, norm, cfg.Cutoff())

	start, end := cfg.Window()
	insightSvc := insights.NewService(dataSvc, start, end, cfg.ActiveWindowDays)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit("1M", "64M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	secret := cfg.AuthSecret
	if cfg.IsDev() {
		secret = ""
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if healthDB != nil {
		e.GET("/health/db", healthDB)
	}

	apiV1 := e.Group("/api/v1", auth.Middleware(secret))
	dataset.NewHandler(dataSvc).RegisterRoutes(apiV1)
	insights.NewHandler(insightSvc).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runAnalyze(file string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	norm := dataset.NewNormalizer(cfg.NaiveLocation())
	dataSvc := dataset.NewService(dataset.NewStore(), nil, norm, cfg.Cutoff())
	if _, err := dataSvc.Ingest(context.Background(), f); err != nil {
		return err
	}

	start, end := cfg.Window()
	report, err := insights.NewService(dataSvc, start, end, cfg.ActiveWindowDays).Report()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
