// Package main wires FinSight's components and runs the detection-cycle
// supervisor plus its ops HTTP surface. Construction order and flag
// handling are grounded on the teacher's cmd/server/main.go (flag parsing,
// zap.Config bootstrap, signal-driven graceful shutdown), generalized from
// a trading-agent wiring graph to FinSight's fetch -> detect -> decide ->
// persist -> track pipeline.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finsight/finsight/internal/api"
	"github.com/finsight/finsight/internal/confidence"
	"github.com/finsight/finsight/internal/decision"
	"github.com/finsight/finsight/internal/detector"
	"github.com/finsight/finsight/internal/events"
	"github.com/finsight/finsight/internal/learning"
	"github.com/finsight/finsight/internal/marketdata"
	"github.com/finsight/finsight/internal/outcome"
	"github.com/finsight/finsight/internal/quality"
	"github.com/finsight/finsight/internal/qualitystore"
	"github.com/finsight/finsight/internal/regime"
	"github.com/finsight/finsight/internal/scheduler"
	"github.com/finsight/finsight/internal/storage"
	"github.com/finsight/finsight/pkg/types"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (yaml/json/toml); env vars always override")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	config, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if len(config.Watchlist) == 0 {
		config.Watchlist = []string{"AAPL", "MSFT", "NVDA", "TSLA", "AMZN"}
	}

	logger.Info("starting finsight",
		zap.Strings("watchlist", config.Watchlist),
		zap.Int("parallelism", config.Scheduler.Parallelism),
		zap.Duration("scanInterval", config.Scheduler.ScanInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewManager(config.Persistence, logger)
	if err != nil {
		logger.Fatal("failed to connect to persistence layer", zap.Error(err))
	}

	bus := events.New(events.DefaultConfig(), logger)
	defer bus.Close()

	adapter := newMarketDataAdapter(config, logger)
	causalLearner := learning.New(config.Causal, nil, logger)
	outcomeTracker := outcome.New(storage.NewOutcomeStore(store), adapter, causalLearner, config.Outcome, nil, bus, logger)

	sup := scheduler.New(scheduler.Deps{
		MarketData: adapter,
		Validator:  quality.NewValidator(logger),
		Classifier: regime.New(config.Regime),
		Detector:   detector.New(config.Detector),
		Confidence: confidence.New(config.Confidence),
		Agent:      decision.New(config.Decision, logger),
		Learner:    causalLearner,
		Anomalies:  store.Anomalies,
		Thresholds: store.Thresholds,
		History:    store.Quality,
		Outcomes:   outcomeTracker,
		Bus:        bus,
	}, config.Scheduler, logger)

	thresholdJob := qualitystore.New(store.Quality, store.Thresholds, config.QualityStore, nil, logger)

	server := api.NewServer(config.Server, store, sup, bus, logger)

	if err := outcomeTracker.Start(ctx); err != nil {
		logger.Fatal("failed to start outcome tracker", zap.Error(err))
	}
	thresholdJob.Start(ctx)
	sup.Run(ctx, config.UserID, config.Watchlist)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()
	sup.Stop()
	outcomeTracker.Stop()
	thresholdJob.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}

	logger.Info("finsight stopped")
}

func newMarketDataAdapter(config types.AppConfig, logger *zap.Logger) *marketdata.Adapter {
	providers := []marketdata.Provider{
		marketdata.NewHTTPProvider("primary", getEnvOrDefault("FINSIGHT_PRIMARY_PROVIDER_URL", "https://data.example.com"), os.Getenv("FINSIGHT_PRIMARY_PROVIDER_KEY"), 10*time.Second),
	}
	if backupURL := os.Getenv("FINSIGHT_BACKUP_PROVIDER_URL"); backupURL != "" {
		providers = append(providers, marketdata.NewHTTPProvider("backup", backupURL, os.Getenv("FINSIGHT_BACKUP_PROVIDER_KEY"), 10*time.Second))
	}
	if streamURL := os.Getenv("FINSIGHT_STREAM_PROVIDER_URL"); streamURL != "" {
		providers = append([]marketdata.Provider{marketdata.NewWebSocketProvider("stream", streamURL, logger)}, providers...)
	}

	var cache marketdata.Cache
	if redisAddr := os.Getenv("FINSIGHT_REDIS_ADDR"); redisAddr != "" {
		cache = marketdata.NewRedisCache(marketdata.RedisCacheConfig{
			Addr:     redisAddr,
			Password: os.Getenv("FINSIGHT_REDIS_PASSWORD"),
			PoolSize: 10,
		}, config.MarketData.CacheTTL, logger)
	} else {
		cache = marketdata.NewMemoryCache(config.MarketData.CacheTTL)
	}

	return marketdata.New(providers, cache, config.MarketData, logger)
}

func loadConfig(path string) (types.AppConfig, error) {
	config := types.DefaultAppConfig()

	v := viper.New()
	v.SetEnvPrefix("finsight")
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config, err
		}
	}
	if err := v.Unmarshal(&config); err != nil {
		return config, err
	}
	if dsn := os.Getenv("FINSIGHT_DSN"); dsn != "" {
		config.Persistence.DSN = dsn
	}
	return config, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
