// Command collector runs one Binance, OKX, and Deribit connector per
// configured market, decodes and publishes their raw events onto
// JetStream, and serves liveness/readiness/metrics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marketprism/marketprism/internal/config"
	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/connector/binance"
	"github.com/marketprism/marketprism/internal/connector/deribit"
	"github.com/marketprism/marketprism/internal/connector/okx"
	"github.com/marketprism/marketprism/internal/connector/ratelimit"
	"github.com/marketprism/marketprism/internal/health"
	"github.com/marketprism/marketprism/internal/normalize"
	"github.com/marketprism/marketprism/internal/orderbook"
	"github.com/marketprism/marketprism/internal/publish"
	"github.com/marketprism/marketprism/internal/schema"
	"github.com/marketprism/marketprism/internal/supervisor"
)

const healthPort = 8081

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "collector",
		Short: "Stream exchange market data into JetStream",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/marketprism/collector.yaml", "path to collector config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the collector until signalled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollector(configPath)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config-check",
		Short: "Load and validate the config file, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadCollectorConfig(configPath); err != nil {
				log.Error().Err(err).Msg("collector: invalid configuration")
				os.Exit(2)
			}
			fmt.Println("config ok")
			return nil
		},
	})
	rootCmd.AddCommand(newHealthcheckCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("collector: fatal error")
	}
}

func newHealthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the running collector's /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return health.Probe(fmt.Sprintf("http://127.0.0.1:%d/health", healthPort))
		},
	}
}

func runCollector(configPath string) error {
	cfg, err := config.LoadCollectorConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("collector: invalid configuration")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(joinServers(cfg.Nats.Servers), nats.MaxReconnects(cfg.Nats.ReconnectMaxAttempts))
	if err != nil {
		return fmt.Errorf("collector: connecting to nats: %w", err)
	}
	defer nc.Close()

	pub, err := publish.New(nc)
	if err != nil {
		return fmt.Errorf("collector: building publisher: %w", err)
	}
	if err := pub.EnsureStreams(ctx); err != nil {
		return fmt.Errorf("collector: ensuring streams: %w", err)
	}

	registry := health.NewRegistry()
	registry.RegisterDependency("nats", func() error {
		if !nc.IsConnected() {
			return fmt.Errorf("not connected")
		}
		return nil
	})

	reg := prometheus.NewRegistry()
	metrics := health.NewMetrics(reg)

	d := newDispatcher(pub, metrics)

	var tasks []supervisor.Task
	for name, exCfg := range cfg.Collector.Exchanges {
		if !exCfg.Enabled {
			continue
		}
		exchange := schema.Exchange(name)
		conn, err := buildConnector(exchange, exCfg)
		if err != nil {
			return fmt.Errorf("collector: building %s connector: %w", name, err)
		}
		d.conns[exchange] = conn

		exCfg := exCfg
		conn := conn
		taskName := "connector-" + name
		tasks = append(tasks, supervisor.Task{
			Name: taskName,
			Run: func(ctx context.Context) error {
				go d.drain(ctx, conn, exCfg, registry, taskName)
				return conn.Subscribe(ctx, marketTypeFor(exCfg), exCfg.Symbols)
			},
		})
	}
	if len(tasks) == 0 {
		return fmt.Errorf("collector: no exchanges enabled in config")
	}

	tasks = append(tasks, supervisor.Task{
		Name: "publisher",
		Run: func(ctx context.Context) error {
			go publishQueueLoop(ctx, pub, metrics)
			pub.Run(ctx)
			return nil
		},
	})

	healthSrv := health.NewServer(health.DefaultConfig(healthPort), registry, metrics, reg)
	go func() {
		if err := healthSrv.Start(); err != nil {
			log.Error().Err(err).Msg("collector: health server stopped")
		}
	}()

	sup := supervisor.New(tasks, registry, supervisor.DefaultConfig())
	runErr := sup.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	pub.Shutdown()

	return runErr
}

// publishQueueLoop periodically samples the publisher's fallback queue
// depth and cumulative drop count into their gauges, since neither is
// updated at the point of occurrence the way the per-event metrics are.
func publishQueueLoop(ctx context.Context, pub *publish.Publisher, metrics *health.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	var lastDropped int64
	for {
		metrics.PublishQueueDepth.Set(float64(pub.QueueDepth()))
		if dropped := pub.DroppedTotal(); dropped > lastDropped {
			metrics.PublishDropped.Add(float64(dropped - lastDropped))
			lastDropped = dropped
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func joinServers(servers []string) string {
	out := ""
	for i, s := range servers {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func marketTypeFor(exCfg config.ExchangeConfig) schema.MarketType {
	return schema.MarketType(exCfg.MarketType)
}

func buildConnector(exchange schema.Exchange, exCfg config.ExchangeConfig) (connector.Connector, error) {
	limiter := ratelimit.New(exCfg.RateLimits.RPS(), exCfg.RateLimits.WeightPerMinute)
	marketType := marketTypeFor(exCfg)
	switch exchange {
	case schema.Binance:
		return binance.New(marketType, limiter), nil
	case schema.OKX:
		return okx.New(marketType, limiter), nil
	case schema.Deribit:
		return deribit.New(marketType, limiter), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", exchange)
	}
}

// dispatcher fans a connector's raw events out to order-book sync or
// straight normalization, and publishes the result. It owns one
// orderbook.Book per (exchange, symbol) and keeps the connector
// reference for each exchange handy so order-book sync can trigger a
// REST snapshot fetch.
type dispatcher struct {
	pub     *publish.Publisher
	metrics *health.Metrics
	booksMu sync.Mutex
	books   map[string]*orderbook.Book
	conns   map[schema.Exchange]connector.Connector
}

func newDispatcher(pub *publish.Publisher, metrics *health.Metrics) *dispatcher {
	return &dispatcher{
		pub:     pub,
		metrics: metrics,
		books:   make(map[string]*orderbook.Book),
		conns:   make(map[schema.Exchange]connector.Connector),
	}
}

// bookFor returns the per-(exchange, symbol) order book, creating it
// with newBook on first touch. Independent exchange drain goroutines
// call this concurrently, so access to the underlying map is
// serialized here rather than left to the caller.
func (d *dispatcher) bookFor(exchange schema.Exchange, symbol string, newBook func() *orderbook.Book) (book *orderbook.Book, created bool) {
	key := d.bookKey(exchange, symbol)
	d.booksMu.Lock()
	defer d.booksMu.Unlock()
	book, ok := d.books[key]
	if ok {
		return book, false
	}
	book = newBook()
	d.books[key] = book
	return book, true
}

func (d *dispatcher) drain(ctx context.Context, conn connector.Connector, exCfg config.ExchangeConfig, registry *health.Registry, taskName string) {
	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			registry.Heartbeat(taskName)
		case ev, ok := <-events:
			if !ok {
				return
			}
			registry.Heartbeat(taskName)
			d.handle(ctx, ev, exCfg)
		}
	}
}

func (d *dispatcher) handle(ctx context.Context, ev connector.RawEvent, exCfg config.ExchangeConfig) {
	if ev.DataType == schema.DataTypeOrderbook {
		d.handleOrderbook(ctx, ev, exCfg)
		return
	}

	rec, err := normalize.Normalize(ev)
	if err != nil {
		log.Warn().Err(err).Str("exchange", string(ev.Exchange)).Str("symbol", ev.Symbol).Msg("collector: dropping unnormalizable event")
		return
	}
	d.publish(ctx, rec)
}

// handleOrderbook feeds Binance and OKX diffs through a per-symbol
// sync state machine. Deribit's "book" channel carries a different
// wire shape (action tags plus price-level add/change/delete ops
// rather than a flat price/qty diff) and has no SequenceValidator
// here, so its order book events are intentionally dropped; Deribit
// trades, funding, open interest, and volatility index still flow
// through normalize.Normalize above.
func (d *dispatcher) handleOrderbook(ctx context.Context, ev connector.RawEvent, exCfg config.ExchangeConfig) {
	switch ev.Exchange {
	case schema.Binance:
		d.handleBinanceOrderbook(ctx, ev, exCfg)
	case schema.OKX:
		d.handleOKXOrderbook(ctx, ev, exCfg)
	default:
		log.Debug().Str("exchange", string(ev.Exchange)).Msg("collector: order book sync not implemented for this exchange")
	}
}

func (d *dispatcher) bookKey(exchange schema.Exchange, symbol string) string {
	return string(exchange) + ":" + symbol
}

func (d *dispatcher) handleBinanceOrderbook(ctx context.Context, ev connector.RawEvent, exCfg config.ExchangeConfig) {
	book, created := d.bookFor(ev.Exchange, ev.Symbol, func() *orderbook.Book {
		b := orderbook.NewBook(ev.Exchange, ev.MarketType, ev.Symbol, orderbook.BinanceValidator{}, exCfg.DepthLimit)
		b.RequestSnapshot()
		return b
	})
	if created {
		if conn, ok := d.conns[ev.Exchange].(*binance.Connector); ok {
			go d.seedBinanceBook(ctx, conn, book, ev.Symbol, exCfg.DepthLimit)
		}
	}

	u, err := orderbook.DecodeBinanceDiff(ev.Payload, ev.ReceivedAt)
	if err != nil {
		log.Warn().Err(err).Str("symbol", ev.Symbol).Msg("collector: malformed binance diff")
		return
	}
	d.applyAndPublish(ev.Exchange, ev.Symbol, book, u)
}

func (d *dispatcher) seedBinanceBook(ctx context.Context, conn *binance.Connector, book *orderbook.Book, symbol string, depthLimit int) {
	snap, err := conn.FetchSnapshot(ctx, symbol, depthLimit)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("collector: fetching binance snapshot failed")
		return
	}
	bids := make([]orderbook.Level, len(snap.Bids))
	for i, l := range snap.Bids {
		bids[i] = orderbook.Level{Price: l.Price, Quantity: l.Quantity}
	}
	asks := make([]orderbook.Level, len(snap.Asks))
	for i, l := range snap.Asks {
		asks[i] = orderbook.Level{Price: l.Price, Quantity: l.Quantity}
	}
	book.Seed(snap.LastUpdateID, bids, asks)
}

func (d *dispatcher) handleOKXOrderbook(ctx context.Context, ev connector.RawEvent, exCfg config.ExchangeConfig) {
	book, _ := d.bookFor(ev.Exchange, ev.Symbol, func() *orderbook.Book {
		b := orderbook.NewBook(ev.Exchange, ev.MarketType, ev.Symbol, orderbook.OKXValidator{}, exCfg.DepthLimit)
		b.RequestSnapshot()
		return b
	})

	u, isSnapshot, err := orderbook.DecodeOKXDiff(ev.Payload, ev.ReceivedAt)
	if err != nil {
		log.Warn().Err(err).Str("symbol", ev.Symbol).Msg("collector: malformed okx diff")
		return
	}
	if isSnapshot {
		book.Seed(u.SeqID, u.Bids, u.Asks)
		d.metrics.OrderbookSyncState.WithLabelValues(string(ev.Exchange), ev.Symbol).Set(float64(book.State()))
		return
	}
	d.applyAndPublish(ev.Exchange, ev.Symbol, book, u)
}

func (d *dispatcher) applyAndPublish(exchange schema.Exchange, symbol string, book *orderbook.Book, u orderbook.Update) {
	now := time.Now()
	beforeState := book.State()
	applied := book.ApplyUpdate(now, u)
	d.metrics.OrderbookSyncState.WithLabelValues(string(exchange), symbol).Set(float64(book.State()))
	if book.State() == orderbook.StateUnsynced && beforeState != orderbook.StateUnsynced {
		d.metrics.OrderbookGaps.WithLabelValues(string(exchange), symbol).Inc()
		book.RequestSnapshot()
	}
	if !applied || book.State() != orderbook.StateSynced {
		return
	}
	d.publish(context.Background(), book.Snapshot(now))
}

func (d *dispatcher) publish(ctx context.Context, rec schema.Record) {
	common := rec.CommonFields()
	dataType := dataTypeFor(rec)
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Msg("collector: marshaling record failed")
		return
	}
	outcome, err := d.pub.Publish(ctx, common.Exchange, common.MarketType, dataType, common.Symbol, payload)
	if err != nil {
		log.Error().Err(err).Str("data_type", string(dataType)).Msg("collector: publish failed")
	}
	d.metrics.MessagesPublished.WithLabelValues(string(dataType), outcome.String()).Inc()
}

func dataTypeFor(rec schema.Record) schema.DataType {
	switch rec.(type) {
	case schema.Trade:
		return schema.DataTypeTrade
	case schema.Orderbook:
		return schema.DataTypeOrderbook
	case schema.FundingRate:
		return schema.DataTypeFundingRate
	case schema.OpenInterest:
		return schema.DataTypeOpenInterest
	case schema.Liquidation:
		return schema.DataTypeLiquidation
	case schema.LSRTopPosition:
		return schema.DataTypeLSRTopPosition
	case schema.LSRAllAccount:
		return schema.DataTypeLSRAllAccount
	case schema.VolatilityIndex:
		return schema.DataTypeVolatilityIndex
	default:
		return ""
	}
}
