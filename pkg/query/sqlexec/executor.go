package sqlexec

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iTwin/presentation-hierarchies/internal/build"
	"github.com/iTwin/presentation-hierarchies/pkg/logger"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
	"github.com/iTwin/presentation-hierarchies/pkg/telemetry"
)

var (
	tracer = otel.Tracer("hierarchies/pkg/query/sqlexec")

	queryDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "sql_query_duration_ms",
		Help:                            "The time (in ms) until a hierarchy query returned its first row batch, labeled by engine.",
		Buckets:                         []float64{1, 5, 10, 25, 50, 100, 200, 300, 1000},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	}, []string{"engine"})
)

// Executor runs queries on a database/sql connection pool.
type Executor struct {
	db     *sql.DB
	engine string
	logger logger.Logger
}

var _ query.Executor = (*Executor)(nil)

type ExecutorOpt func(*Executor)

// WithLogger sets the logger used for query tracing.
func WithLogger(l logger.Logger) ExecutorOpt {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor returns an executor for db. engine selects the placeholder format.
func NewExecutor(db *sql.DB, engine string, opts ...ExecutorOpt) *Executor {
	e := &Executor{
		db:     db,
		engine: engine,
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Execute(ctx context.Context, q query.Query) (query.RowIterator, error) {
	ctx, span := tracer.Start(ctx, "sqlexec.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("engine", e.engine))

	sqlText, err := placeholders(e.engine).ReplacePlaceholders(q.SQL)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}
	e.logger.Log(logger.CategoryQueries, logger.SeverityTrace, func() string {
		return "executing query: " + sqlText
	}, zap.Any("bindings", q.Args()))

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText, q.Args()...)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}
	queryDurationHistogram.WithLabelValues(e.engine).Observe(float64(time.Since(start).Milliseconds()))

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		telemetry.TraceError(span, err)
		return nil, err
	}
	return &rowIterator{rows: rows, columns: columns}, nil
}

type rowIterator struct {
	rows     *sql.Rows
	columns  []string
	stopOnce sync.Once
}

func (r *rowIterator) Next(ctx context.Context) (query.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, err
		}
		return nil, query.ErrIteratorDone
	}

	values := make([]any, len(r.columns))
	ptrs := make([]any, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(query.Row, len(r.columns))
	for i, c := range r.columns {
		if b, ok := values[i].([]byte); ok {
			row[c] = string(b)
			continue
		}
		row[c] = values[i]
	}
	return row, nil
}

func (r *rowIterator) Stop() {
	r.stopOnce.Do(func() {
		_ = r.rows.Close()
	})
}
