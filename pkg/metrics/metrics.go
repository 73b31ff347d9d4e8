package metrics

import (
  "net/http"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
  // Collector service metrics
  CollectorRequestDuration = prometheus.NewHistogramVec(
    prometheus.HistogramOpts{
      Name:    "collector_request_duration_seconds",
      Help:    "Collector HTTP request duration",
      Buckets: prometheus.DefBuckets,
    },
    []string{"endpoint", "status"},
  )
  CollectorRequestTotal = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "collector_requests_total",
      Help: "Total collector HTTP requests",
    },
    []string{"endpoint", "status"},
  )
  ProviderRequestDuration = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "provider_request_duration_seconds",
      Help:    "Time to fetch one quote from the upstream provider",
      Buckets: prometheus.DefBuckets,
    })
  ProviderErrors = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "provider_errors_total",
      Help: "Upstream provider errors by class",
    },
    []string{"class"},
  )

  // Scheduler metrics
  SchedulerTicks = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "scheduler_ticks_total",
      Help: "Total scheduler refresh passes started",
    })
  SchedulerRunDuration = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "scheduler_run_duration_seconds",
      Help:    "Time to complete one refresh pass",
      Buckets: prometheus.DefBuckets,
    })
  SchedulerSymbolSuccess = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "scheduler_symbol_success_total",
      Help: "Symbols refreshed successfully",
    })
  SchedulerSymbolFailures = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "scheduler_symbol_failures_total",
      Help: "Symbol refresh failures by class",
    },
    []string{"class"},
  )

  // API metrics
  APIRequestDuration = prometheus.NewHistogramVec(
    prometheus.HistogramOpts{
      Name:    "api_request_duration_seconds",
      Help:    "API request duration",
      Buckets: prometheus.DefBuckets,
    },
    []string{"method", "endpoint", "status"},
  )
  APIRequestTotal = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "api_requests_total",
      Help: "Total API requests",
    },
    []string{"method", "endpoint", "status"},
  )

  // Redis metrics
  RedisOperationDuration = prometheus.NewHistogramVec(
    prometheus.HistogramOpts{
      Name:    "redis_operation_duration_seconds",
      Help:    "Redis operation duration",
      Buckets: prometheus.DefBuckets,
    },
    []string{"operation", "status"},
  )
  RedisErrors = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "redis_errors_total",
      Help: "Total Redis errors",
    },
    []string{"operation"},
  )

  // Database metrics
  DatabaseHealthCheckDuration = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "database_health_check_duration_seconds",
      Help:    "Database health check duration",
      Buckets: prometheus.DefBuckets,
    })
  DatabaseHealthCheckSuccess = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "database_health_check_success_total",
      Help: "Total successful database health checks",
    })
  DatabaseHealthCheckErrors = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "database_health_check_errors_total",
      Help: "Total database health check errors",
    })
  DatabaseOperationDuration = prometheus.NewHistogramVec(
    prometheus.HistogramOpts{
      Name:    "database_operation_duration_seconds",
      Help:    "Database operation duration",
      Buckets: prometheus.DefBuckets,
    },
    []string{"operation", "status"},
  )
  DatabaseOperations = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "database_operations_total",
      Help: "Total database operations",
    },
    []string{"operation", "status"},
  )
  DatabaseErrors = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "database_errors_total",
      Help: "Total database errors",
    },
    []string{"operation"},
  )

  // Authentication metrics
  AuthOperations = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "auth_operations_total",
      Help: "Total authentication operations",
    },
    []string{"operation", "status"},
  )
  AuthErrors = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "auth_errors_total",
      Help: "Total authentication errors",
    },
    []string{"operation"},
  )

  // Websocket metrics
  WSConnections = prometheus.NewGauge(
    prometheus.GaugeOpts{
      Name: "ws_active_connections",
      Help: "Active websocket quote subscribers",
    })
)

func init() {
  // MustRegister panics if registration fails (e.g. duplicate)
  prometheus.MustRegister(
    CollectorRequestDuration, CollectorRequestTotal,
    ProviderRequestDuration, ProviderErrors,
    SchedulerTicks, SchedulerRunDuration,
    SchedulerSymbolSuccess, SchedulerSymbolFailures,
    APIRequestDuration, APIRequestTotal,
    RedisOperationDuration, RedisErrors,
    DatabaseHealthCheckDuration, DatabaseHealthCheckSuccess, DatabaseHealthCheckErrors,
    DatabaseOperationDuration, DatabaseOperations, DatabaseErrors,
    AuthOperations, AuthErrors,
    WSConnections,
  )
}

// Handler exposes the default registry.
func Handler() http.Handler {
  return promhttp.Handler()
}
