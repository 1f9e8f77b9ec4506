package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/scoreline-trading/scoreline/api"
	"github.com/scoreline-trading/scoreline/internal/config"
	"github.com/scoreline-trading/scoreline/internal/storage"
	"github.com/scoreline-trading/scoreline/pkg/engine"
	"github.com/scoreline-trading/scoreline/pkg/espn"
	"github.com/scoreline-trading/scoreline/pkg/kalshi"
	"github.com/scoreline-trading/scoreline/pkg/models"
	"github.com/scoreline-trading/scoreline/pkg/risk"
	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	// Local development credentials; missing file is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "scoreline",
		Short: "Sports prediction market trading system",
		Long:  `Evaluates declarative strategies against live sports scoreboards and trades the corresponding prediction markets, with risk gating and historical replay`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(tradeCmd(), collectCmd(), backtestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setup() *config.Config {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return cfg
}

func tradeCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Run the live trading loop",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := setup()
			runTrade(cfg, live)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "place real orders instead of simulating fills")
	return cmd
}

func collectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Record game and market snapshots for later replay",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := setup()
			runCollect(cfg)
		},
	}
}

func backtestCmd() *cobra.Command {
	var (
		startStr string
		endStr   string
		sportStr string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay recorded snapshots through the strategy pipeline",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := setup()
			runBacktest(cfg, startStr, endStr, sportStr)
		},
	}
	cmd.Flags().StringVar(&startStr, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "end date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&sportStr, "sport", "", "restrict to one sport (nfl, nba, college-football)")
	return cmd
}

func runTrade(cfg *config.Config, live bool) {
	if live && strings.EqualFold(cfg.Kalshi.Environment, "production") && !confirmLive() {
		logger.Fatal("Live trading not confirmed, aborting")
	}

	strategies := loadStrategies(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := espn.NewClient(time.Duration(cfg.ESPN.Timeout)*time.Second, logger)

	var (
		client *kalshi.Client
		signer *kalshi.Signer
		err    error
	)
	sandbox := !strings.EqualFold(cfg.Kalshi.Environment, "production")
	if cfg.Kalshi.PrivateKeyPEM != "" {
		signer, err = kalshi.NewSigner(cfg.Kalshi.KeyID, cfg.Kalshi.PrivateKeyPEM)
	} else if cfg.Kalshi.PrivateKeyPath != "" {
		signer, err = kalshi.NewSignerFromFile(cfg.Kalshi.KeyID, cfg.Kalshi.PrivateKeyPath)
	}
	if err != nil {
		logger.WithError(err).Fatal("Failed to load Kalshi credentials")
	}
	if signer != nil {
		client = kalshi.NewClient(signer, sandbox, logger)
	} else if live {
		logger.Fatal("Live trading requires Kalshi credentials")
	}

	markets := kalshi.NewMarketSource(client, cfg.Markets.Mapping)

	store := openStore(cfg)
	if store != nil {
		defer store.Close()
	}

	riskMgr := risk.NewManager(riskLimits(cfg), logger)
	rehydrateRisk(ctx, riskMgr, store)

	mode := engine.ModeDryRun
	if live {
		mode = engine.ModeLive
	}
	dispatcher := engine.NewDispatcher(client, mode, cfg.Trading.DispatchRetries, logger)
	pipeline := engine.NewPipeline(riskMgr, dispatcher, store, logger)

	interval := time.Duration(cfg.Trading.PollInterval * float64(time.Second))
	runner := engine.NewRunner(feed, markets, pipeline, riskMgr, strategies, interval, logger)

	if cfg.Kalshi.WebSocket.Enabled && signer != nil {
		startTickerFeed(ctx, cfg, signer, sandbox, markets)
	}

	apiServer := api.NewServer(riskMgr, strategies, store, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	go func() {
		if err := runner.Run(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("Trading loop exited")
		}
	}()

	logger.WithFields(logrus.Fields{
		"mode":       string(mode),
		"strategies": len(strategies),
	}).Info("Scoreline is running. Press Ctrl+C to stop.")

	waitForSignal()

	runner.Stop()
	cancel()
	logger.Info("Scoreline stopped")
}

func runCollect(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := openStore(cfg)
	if store == nil {
		logger.Fatal("Collector requires a database")
	}
	defer store.Close()

	feed := espn.NewClient(time.Duration(cfg.ESPN.Timeout)*time.Second, logger)

	var markets engine.MarketFeed
	if len(cfg.Markets.Mapping) > 0 {
		markets = kalshi.NewMarketSource(nil, cfg.Markets.Mapping)
		if cfg.Kalshi.PrivateKeyPath != "" || cfg.Kalshi.PrivateKeyPEM != "" {
			signer, err := newSigner(cfg)
			if err != nil {
				logger.WithError(err).Warn("Kalshi credentials unusable, collecting games only")
			} else {
				sandbox := !strings.EqualFold(cfg.Kalshi.Environment, "production")
				markets = kalshi.NewMarketSource(kalshi.NewClient(signer, sandbox, logger), cfg.Markets.Mapping)
			}
		}
	}

	interval := time.Duration(cfg.Trading.PollInterval * float64(time.Second))
	collector := engine.NewCollector(feed, markets, store, interval, logger)

	go func() {
		if err := collector.Run(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("Collector exited")
		}
	}()

	logger.Info("Collector is running. Press Ctrl+C to stop.")
	waitForSignal()

	collector.Stop()
	cancel()
	logger.Info("Collector stopped")
}

func runBacktest(cfg *config.Config, startStr, endStr, sportStr string) {
	ctx := context.Background()

	store := openStore(cfg)
	if store == nil {
		logger.Fatal("Backtest requires a database of recorded snapshots")
	}
	defer store.Close()

	strategies := loadStrategies(cfg)

	opts := engine.ReplayOptions{}
	if startStr != "" {
		t, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			logger.WithError(err).Fatal("Invalid --start date")
		}
		opts.Start = t
	}
	if endStr != "" {
		t, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			logger.WithError(err).Fatal("Invalid --end date")
		}
		// Inclusive end date.
		opts.End = t.Add(24 * time.Hour)
	}
	if sportStr != "" {
		opts.Sport = models.Sport(sportStr)
	}

	replayer := engine.NewReplayer(store, strategies, riskLimits(cfg), logger)
	result, err := replayer.Run(ctx, opts, func(rec models.TradeRecord) error {
		logger.WithFields(logrus.Fields{
			"timestamp": rec.Timestamp.Format(time.RFC3339),
			"matchup":   rec.Matchup,
			"strategy":  rec.Strategy,
			"status":    string(rec.Status),
			"pnl":       rec.PnL,
		}).Debug("Replay trade")
		return nil
	})
	if err != nil {
		logger.WithError(err).Fatal("Backtest failed")
	}

	fmt.Print(result.Summary())
}

func loadStrategies(cfg *config.Config) []*strategy.Strategy {
	strategies, err := config.LoadStrategies(cfg.Strategies, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load strategies")
	}
	if len(strategies) == 0 {
		logger.WithField("dir", cfg.Strategies).Fatal("No valid strategies found")
	}
	return strategies
}

func riskLimits(cfg *config.Config) risk.Limits {
	return risk.Limits{
		MaxPosition:          cfg.Risk.MaxPosition,
		MaxDailyLoss:         cfg.Risk.MaxDailyLoss,
		MaxExposurePerMarket: cfg.Risk.MaxExposurePerMarket,
		MaxTotalExposure:     cfg.Risk.MaxTotalExposure,
	}
}

func newSigner(cfg *config.Config) (*kalshi.Signer, error) {
	if cfg.Kalshi.PrivateKeyPEM != "" {
		return kalshi.NewSigner(cfg.Kalshi.KeyID, cfg.Kalshi.PrivateKeyPEM)
	}
	return kalshi.NewSignerFromFile(cfg.Kalshi.KeyID, cfg.Kalshi.PrivateKeyPath)
}

// openStore opens the trade database. A missing or unreachable database is
// not fatal for trading; persistence degrades to logging.
func openStore(cfg *config.Config) storage.Store {
	if cfg.Database.Host == "" {
		return nil
	}
	store, err := storage.Open(storage.Options{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.WithError(err).Warn("Database unavailable, persistence disabled")
		return nil
	}
	return store
}

// rehydrateRisk reseeds risk state from today's persisted trades so a
// restart mid-day does not forget accumulated losses.
func rehydrateRisk(ctx context.Context, riskMgr *risk.Manager, store storage.Store) {
	if store == nil {
		return
	}
	records, err := store.TradesOn(ctx, time.Now())
	if err != nil {
		logger.WithError(err).Warn("Failed to load today's trades for risk rehydration")
		return
	}
	riskMgr.Rehydrate(records)
	if len(records) > 0 {
		logger.WithField("trades", len(records)).Info("Rehydrated risk state from today's trades")
	}
}

func startTickerFeed(ctx context.Context, cfg *config.Config, signer *kalshi.Signer, sandbox bool, markets *kalshi.MarketSource) {
	ws := kalshi.NewWebSocketClient(signer, sandbox,
		time.Duration(cfg.Kalshi.WebSocket.ReconnectDelay)*time.Second,
		cfg.Kalshi.WebSocket.MaxReconnects, logger)
	ws.OnTicker(func(update kalshi.TickerUpdate) {
		markets.ApplyTicker(update)
	})
	if err := ws.Connect(ctx); err != nil {
		logger.WithError(err).Warn("WebSocket connect failed, falling back to polling")
		return
	}
	if err := ws.Subscribe(markets.Tickers()); err != nil {
		logger.WithError(err).Warn("WebSocket subscribe failed")
	}
}

// confirmLive requires an explicit typed confirmation before real orders go
// out against the production venue.
func confirmLive() bool {
	fmt.Print("Live trading against PRODUCTION. Type 'yes' to continue: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(line)) == "yes"
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Received shutdown signal")
}
