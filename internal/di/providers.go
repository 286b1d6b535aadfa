package di

import (
	"context"
	"fmt"
	"time"

	"AlphaPull/internal/domain/models"
	drepo "AlphaPull/internal/domain/repository"
	"AlphaPull/internal/handler/api"
	internalrepo "AlphaPull/internal/repository"
	"AlphaPull/internal/service/alphavantage"
	"AlphaPull/internal/service/binance"
	"AlphaPull/internal/service/retry"
	"AlphaPull/internal/services/features"
	"AlphaPull/internal/services/model"
	"AlphaPull/internal/usecase"
	pkgch "AlphaPull/pkg/clickhouse"
	"AlphaPull/pkg/config"
	pkgkafka "AlphaPull/pkg/kafka"
	applogger "AlphaPull/pkg/logger"
	"AlphaPull/pkg/metrics"
	"AlphaPull/pkg/server"
)

// ProvideLogger builds the application logger. Development gets console
// debug output; everything else structured JSON at info.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "json", Output: "stdout"}
	if cfg.Environment == "development" {
		lc.Level = "debug"
		lc.Format = "console"
	}
	return applogger.New(lc)
}

// ProvideClickHouseClient creates a ClickHouse client and initializes
// the schema. Returns nil when the memory backend is configured.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Backend.Type != "clickhouse" {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		`CREATE TABLE IF NOT EXISTS ` + db + `.observations (
            symbol String, ts DateTime64(3, 'UTC'),
            open Float64, high Float64, low Float64, close Float64, volume Float64,
            source String, ingestion_id String, superseded UInt8 DEFAULT 0
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (symbol, source, ts)`,
		`CREATE TABLE IF NOT EXISTS ` + db + `.features (
            symbol String, ts DateTime64(3, 'UTC'), version String, values_json String
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, version, ts)`,
		`CREATE TABLE IF NOT EXISTS ` + db + `.signals (
            symbol String, ts DateTime64(3, 'UTC'), decision String,
            confidence Float64, expected_return Float64,
            feature_version String, model_version String
        ) ENGINE = MergeTree
        ORDER BY (symbol, ts)`,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideInstruments maps the configured pairs to domain instruments.
func ProvideInstruments(cfg *config.Config) []models.Instrument {
	out := make([]models.Instrument, 0, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		out = append(out, models.Instrument{
			Symbol: inst.Symbol,
			Class:  models.AssetClass(inst.Class),
			Venue:  inst.Venue,
			Source: inst.Source,
		})
	}
	return out
}

// ProvideRawStore selects the raw observation store backend.
func ProvideRawStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) drepo.RawStore {
	if cfg.Backend.Type == "clickhouse" {
		s := internalrepo.NewCHRawStore(ch)
		s.SetLogger(l)
		return s
	}
	return internalrepo.NewMemoryRawStore()
}

// ProvideProcessedStore selects the feature store backend.
func ProvideProcessedStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) drepo.ProcessedStore {
	if cfg.Backend.Type == "clickhouse" {
		s := internalrepo.NewCHProcessedStore(ch)
		s.SetLogger(l)
		return s
	}
	return internalrepo.NewMemoryProcessedStore()
}

// ProvideSignalLog selects the signal log backend.
func ProvideSignalLog(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) drepo.SignalLog {
	if cfg.Backend.Type == "clickhouse" {
		s := internalrepo.NewCHSignalLog(ch)
		s.SetLogger(l)
		return s
	}
	return internalrepo.NewMemorySignalLog()
}

// ProvideCursorStore selects the cursor/lease backend. Redis serializes
// pairs across processes; the in-memory store only within one.
func ProvideCursorStore(cfg *config.Config) (drepo.CursorStore, error) {
	if cfg.Redis.Enabled {
		return internalrepo.NewRedisCursorStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	return internalrepo.NewMemoryCursorStore(), nil
}

// ProvideAdapters builds one source adapter per configured provider.
func ProvideAdapters(cfg *config.Config) []drepo.SourceAdapter {
	bOpts := []binance.Option{}
	if cfg.Binance.BaseURL != "" {
		bOpts = append(bOpts, binance.WithBaseURL(cfg.Binance.BaseURL))
	}
	if cfg.Binance.Interval != "" {
		bOpts = append(bOpts, binance.WithInterval(cfg.Binance.Interval))
	}
	if cfg.Binance.Limit > 0 {
		bOpts = append(bOpts, binance.WithLimit(cfg.Binance.Limit))
	}
	if cfg.Binance.BackfillStart != "" {
		if t, err := time.Parse("2006-01-02", cfg.Binance.BackfillStart); err == nil {
			bOpts = append(bOpts, binance.WithBackfillStart(t))
		}
	}
	adapters := []drepo.SourceAdapter{binance.New(bOpts...)}

	if cfg.AlphaVantage.APIKey != "" {
		avOpts := []alphavantage.Option{}
		if cfg.AlphaVantage.BaseURL != "" {
			avOpts = append(avOpts, alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL))
		}
		adapters = append(adapters, alphavantage.New(cfg.AlphaVantage.APIKey, avOpts...))
	}
	return adapters
}

// ProvidePredictor selects the model boundary implementation.
func ProvidePredictor(cfg *config.Config) drepo.Predictor {
	if cfg.Model.Type == "http" {
		version := cfg.Model.Version
		if version == "" {
			version = "v1"
		}
		return model.NewHTTPPredictor(cfg.Model.URL, version)
	}
	stub := model.NewStubPredictor(cfg.Model.StubReturn)
	if cfg.Model.Version != "" {
		stub.Version = cfg.Model.Version
	}
	return stub
}

// ProvideCoordinator creates the ingestion coordinator.
func ProvideCoordinator(adapters []drepo.SourceAdapter, raw drepo.RawStore, cursors drepo.CursorStore, m drepo.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.Coordinator {
	opts := []usecase.CoordinatorOption{}
	if cfg.Ingestion.LeaseTTL > 0 {
		opts = append(opts, usecase.WithLeaseTTL(cfg.Ingestion.LeaseTTL))
	}
	if r := cfg.Ingestion.Retry; r.MaxAttempts > 0 {
		opts = append(opts, usecase.WithRetryPolicy(retry.Policy{
			MaxAttempts: r.MaxAttempts,
			BaseDelay:   r.BaseDelay,
			MaxDelay:    r.MaxDelay,
			Jitter:      r.Jitter,
		}))
	}
	return usecase.NewCoordinator(adapters, raw, cursors, m, l, opts...)
}

// ProvideEngine creates the feature engine.
func ProvideEngine(raw drepo.RawStore, l *applogger.Logger) *features.Engine {
	return features.NewEngine(raw, l)
}

// ProvideSignalGenerator creates the signal policy over the model.
func ProvideSignalGenerator(pred drepo.Predictor, cfg *config.Config, l *applogger.Logger) *usecase.SignalGenerator {
	threshold := cfg.Signals.Threshold
	if threshold <= 0 {
		threshold = 0.01
	}
	return usecase.NewSignalGenerator(pred, threshold, l)
}

// ProvidePipeline assembles the per-cycle pipeline.
func ProvidePipeline(
	coord *usecase.Coordinator,
	engine *features.Engine,
	processed drepo.ProcessedStore,
	signals drepo.SignalLog,
	gen *usecase.SignalGenerator,
	m drepo.Metrics,
	l *applogger.Logger,
	producer *pkgkafka.Producer,
	cfg *config.Config,
) *usecase.Pipeline {
	opts := []usecase.PipelineOption{}
	if cfg.Ingestion.Workers > 0 {
		opts = append(opts, usecase.WithWorkers(cfg.Ingestion.Workers))
	}
	if cfg.Ingestion.PairTimeout > 0 {
		opts = append(opts, usecase.WithPairTimeout(cfg.Ingestion.PairTimeout))
	}
	if cfg.Features.Version != "" && cfg.Features.Interval > 0 {
		opts = append(opts, usecase.WithFeatureSet(cfg.Features.Version, cfg.Features.Interval))
	}
	if producer != nil {
		opts = append(opts, usecase.WithSignalPublisher(internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topic)))
	}
	return usecase.NewPipeline(coord, engine, processed, signals, gen, m, l, opts...)
}

// ProvideApp creates the application server with the HTTP surface and
// the optional live collector wired in.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *usecase.Pipeline,
	instruments []models.Instrument,
	raw drepo.RawStore,
	processed drepo.ProcessedStore,
	signals drepo.SignalLog,
	m drepo.Metrics,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	app := server.New(cfg, l, pipeline, instruments)
	app.SetHTTPHandler(api.NewPipelineHandler(l, pipeline, signals, processed, raw, instruments))

	if cfg.Binance.Stream.Enabled {
		symbols := make([]string, 0, len(instruments))
		for _, inst := range instruments {
			if inst.Source == "binance" {
				symbols = append(symbols, inst.Symbol)
			}
		}
		if len(symbols) > 0 {
			stream := binance.NewStream(cfg.Binance.Stream.URL, symbols, cfg.Binance.Stream.ReconnectDelay, cfg.Binance.Stream.PingInterval)
			app.SetLiveCollector(usecase.NewLiveCollector(stream, raw, m, l))
		}
	}

	app.AddCloser(raw)
	app.AddCloser(processed)
	app.AddCloser(signals)
	if ch != nil {
		app.AddCloser(ch)
	}
	if producer != nil {
		app.AddCloser(producer)
	}
	return app
}
