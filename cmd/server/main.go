package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/rmacedof/fuelsync/internal/config"
	"github.com/rmacedof/fuelsync/internal/flight"
	"github.com/rmacedof/fuelsync/internal/normalize"
	"github.com/rmacedof/fuelsync/internal/portal"
	"github.com/rmacedof/fuelsync/internal/provider"
	"github.com/rmacedof/fuelsync/internal/reimburse"
	"github.com/rmacedof/fuelsync/internal/sales"
	"github.com/rmacedof/fuelsync/internal/server"
	"github.com/rmacedof/fuelsync/internal/store"
	"github.com/rmacedof/fuelsync/pkg/database"
	"github.com/rmacedof/fuelsync/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting fuelsync server",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	stationRepo := store.NewStationRepository(db.DB, logger)
	refuelRepo := store.NewRefuelRepository(db.DB, logger)
	saleRepo := store.NewSaleRepository(db.DB, logger)

	if err := stationRepo.Sync(cfg.AllowList()); err != nil {
		logger.Fatal("Failed to sync station registry", zap.Error(err))
	}

	normalizer := normalize.New(normalize.Options{
		AllowList:       cfg.AllowList(),
		ExemptFragments: cfg.Sync.ExemptFragments,
		SecondaryMarker: cfg.Sync.SecondaryMarker,
	}, stationRepo)

	auth := portal.NewAuthenticator(portal.AuthConfig{
		LoginURL:        cfg.Portal.LoginURL,
		APIHost:         cfg.Portal.APIHost,
		LoginTimeout:    cfg.Portal.LoginTimeout,
		TokenWait:       cfg.Portal.TokenWait,
		TokenSettleWait: cfg.Portal.TokenSettleWait,
	}, logger)

	origin := strings.TrimSuffix(cfg.Portal.LoginURL, "/")

	reimburseRunner := reimburse.NewRunner(reimburse.Config{
		Username:        cfg.Portal.Username,
		Password:        cfg.Portal.Password,
		APIBaseURL:      cfg.Portal.APIBaseURL,
		Origin:          origin,
		InvoicePath:     cfg.Portal.InvoicePath,
		DetailPath:      cfg.Portal.DetailPath,
		InvoicePageSize: cfg.Sync.InvoicePageSize,
		DetailPageSize:  cfg.Sync.DetailPageSize,
		Workers:         cfg.Sync.Workers,
		LookbackDays:    cfg.Sync.ReimburseLookbackDays,
		RequestTimeout:  cfg.Portal.RequestTimeout,
	}, auth, normalizer, refuelRepo, logger)

	salesRunner := sales.NewRunner(sales.Config{
		APIBaseURL:     cfg.Portal.APIBaseURL,
		Origin:         origin,
		SalesPath:      cfg.Portal.SalesPath,
		PageSize:       cfg.Sync.SalesPageSize,
		RequestTimeout: cfg.Portal.RequestTimeout,
	}, stationRepo, normalizer, saleRepo, logger)

	profrotas := provider.NewProfrotas(
		stationRepo, refuelRepo, saleRepo,
		reimburseRunner, salesRunner,
		flight.New(), logger)

	srv := server.NewServer(cfg.Server, provider.NewRegistry(profrotas), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
