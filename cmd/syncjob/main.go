// Command syncjob is the cron entry point: one-shot bulk extraction of
// reimbursements, daily sales, or both.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/rmacedof/fuelsync/internal/config"
	"github.com/rmacedof/fuelsync/internal/normalize"
	"github.com/rmacedof/fuelsync/internal/portal"
	"github.com/rmacedof/fuelsync/internal/reimburse"
	"github.com/rmacedof/fuelsync/internal/sales"
	"github.com/rmacedof/fuelsync/internal/store"
	"github.com/rmacedof/fuelsync/pkg/database"
	"github.com/rmacedof/fuelsync/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	mode := flag.String("mode", "all", "what to sync: reimburse, sales or all")
	flag.Parse()

	if *mode != "reimburse" && *mode != "sales" && *mode != "all" {
		fmt.Fprintf(os.Stderr, "invalid -mode %q (want reimburse, sales or all)\n", *mode)
		os.Exit(2)
	}

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

	logger.Info("Starting sync job", zap.String("mode", *mode))

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

	origin := strings.TrimSuffix(cfg.Portal.LoginURL, "/")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := false

	if *mode == "reimburse" || *mode == "all" {
		auth := portal.NewAuthenticator(portal.AuthConfig{
			LoginURL:        cfg.Portal.LoginURL,
			APIHost:         cfg.Portal.APIHost,
			LoginTimeout:    cfg.Portal.LoginTimeout,
			TokenWait:       cfg.Portal.TokenWait,
			TokenSettleWait: cfg.Portal.TokenSettleWait,
		}, logger)

		runner := reimburse.NewRunner(reimburse.Config{
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

		if err := runner.Run(ctx); err != nil {
			logger.Error("Reimbursement sync failed", zap.Error(err))
			failed = true
		}
	}

	if *mode == "sales" || *mode == "all" {
		runner := sales.NewRunner(sales.Config{
			APIBaseURL:     cfg.Portal.APIBaseURL,
			Origin:         origin,
			SalesPath:      cfg.Portal.SalesPath,
			PageSize:       cfg.Sync.SalesPageSize,
			RequestTimeout: cfg.Portal.RequestTimeout,
		}, stationRepo, normalizer, saleRepo, logger)

		from, to, validDays := sales.DailyWindow(time.Now())
		var cnpjs []string
		for _, s := range cfg.Stations {
			cnpjs = append(cnpjs, s.CNPJ)
		}
		runner.RunAll(ctx, cnpjs, from, to, validDays)
	}

	if failed {
		logger.Warn("Sync job finished with errors")
		os.Exit(1)
	}
	logger.Info("Sync job finished")
}
