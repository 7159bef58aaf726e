package clickhouse_inserter

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch is the part of a ClickHouse batch the inserter uses.
type Batch interface {
	AppendStruct(v any) error
	Send() error
}

// Conn prepares batches for a single insert query.
type Conn interface {
	PrepareBatch(ctx context.Context, query string) (Batch, error)
}

type driverConn struct {
	conn driver.Conn
}

// WrapConn adapts a clickhouse-go connection to Conn.
func WrapConn(conn driver.Conn) Conn {
	return &driverConn{conn: conn}
}

func (c *driverConn) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

type Inserter struct {
	conn           Conn
	query          string
	mu             sync.Mutex
	queuedEvents   []any
	batchSize      int
	flushInterval  time.Duration
	insertsCounter *prometheus.CounterVec
	pendingSends   prometheus.Gauge
	histogram      *prometheus.HistogramVec
	logger         *slog.Logger
	prefix         string
	onFlush        func()

	stop chan struct{}
	done chan struct{}
}

type Args struct {
	Conn                    Conn
	Query                   string
	BatchSize               int
	FlushInterval           time.Duration
	PrometheusCounterPrefix string
	Registerer              prometheus.Registerer
	Logger                  *slog.Logger
	Histogram               *prometheus.HistogramVec
	// OnFlush runs after every batch ClickHouse accepted.
	OnFlush                 func()
}

func New(ctx context.Context, args *Args) (*Inserter, error) {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	if args.Registerer == nil {
		args.Registerer = prometheus.DefaultRegisterer
	}

	if args.BatchSize <= 0 {
		args.BatchSize = 1
	}

	inserter := &Inserter{
		conn:          args.Conn,
		query:         args.Query,
		mu:            sync.Mutex{},
		batchSize:     args.BatchSize,
		flushInterval: args.FlushInterval,
		histogram:     args.Histogram,
		logger:        args.Logger,
		prefix:        args.PrometheusCounterPrefix,
		onFlush:       args.OnFlush,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	if args.PrometheusCounterPrefix != "" {
		factory := promauto.With(args.Registerer)

		inserter.insertsCounter = factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "clickhouse_inserts",
			Namespace: args.PrometheusCounterPrefix,
			Help:      "total inserts into clickhouse by status",
		}, []string{"status"})

		inserter.pendingSends = factory.NewGauge(prometheus.GaugeOpts{
			Name:      "clickhouse_pending_sends",
			Namespace: args.PrometheusCounterPrefix,
			Help:      "total clickhouse insertions that are in progress",
		})
	} else {
		args.Logger.Info("no prometheus prefix provided, no metrics will be registered for this counter", "query", args.Query)
	}

	if inserter.flushInterval > 0 {
		go inserter.flushLoop(ctx)
	} else {
		close(inserter.done)
	}

	return inserter, nil
}

func (i *Inserter) Insert(ctx context.Context, e any) error {
	i.mu.Lock()

	i.queuedEvents = append(i.queuedEvents, e)

	var toInsert []any
	if len(i.queuedEvents) >= i.batchSize {
		toInsert = slices.Clone(i.queuedEvents)
		i.queuedEvents = nil
	}

	i.mu.Unlock()

	if len(toInsert) > 0 {
		i.sendStream(ctx, toInsert)
	}

	return nil
}

// Pending reports how many rows are queued but not yet sent.
func (i *Inserter) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queuedEvents)
}

// Flush sends whatever is queued, regardless of batch size.
func (i *Inserter) Flush(ctx context.Context) {
	i.mu.Lock()

	var toInsert []any
	if len(i.queuedEvents) > 0 {
		toInsert = slices.Clone(i.queuedEvents)
		i.queuedEvents = nil
	}

	i.mu.Unlock()

	if len(toInsert) > 0 {
		i.sendStream(ctx, toInsert)
	}
}

func (i *Inserter) Close(ctx context.Context) error {
	select {
	case <-i.stop:
	default:
		close(i.stop)
	}

	select {
	case <-i.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	i.Flush(ctx)

	return nil
}

func (i *Inserter) flushLoop(ctx context.Context) {
	defer close(i.done)

	ticker := time.NewTicker(i.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.Flush(ctx)
		}
	}
}

func (i *Inserter) sendStream(ctx context.Context, toInsert []any) {
	if i.pendingSends != nil {
		i.pendingSends.Inc()
		defer i.pendingSends.Dec()
	}

	if i.histogram != nil {
		start := time.Now()
		defer func() {
			i.histogram.WithLabelValues(i.prefix).Observe(time.Since(start).Seconds())
		}()
	}

	if len(toInsert) == 0 {
		return
	}

	sent, failed := 0, 0
	defer func() {
		if i.insertsCounter != nil {
			i.insertsCounter.WithLabelValues("ok").Add(float64(sent))
			i.insertsCounter.WithLabelValues("failed").Add(float64(failed))
		}
	}()

	batch, err := i.conn.PrepareBatch(ctx, i.query)
	if err != nil {
		i.logger.Error("error creating batch", "prefix", i.prefix, "error", err)
		failed = len(toInsert)
		return
	}

	appended := 0
	for _, d := range toInsert {
		if err := batch.AppendStruct(d); err != nil {
			i.logger.Error("error appending to batch", "prefix", i.prefix, "error", err)
			failed++
			continue
		}
		appended++
	}

	if appended == 0 {
		return
	}

	if err := batch.Send(); err != nil {
		failed += appended
		i.logger.Error("error sending batch", "prefix", i.prefix, "error", err)
		return
	}

	sent = appended

	if i.onFlush != nil {
		i.onFlush()
	}
}
