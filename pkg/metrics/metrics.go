// Package metrics 提供 Prometheus 指标定义与 /metrics 暴露
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/optionescrow/pkg/logger"
)

const namespace = "escrow"

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// gRPC 请求计数
	GRPCRequestsTotal *prometheus.CounterVec
	// gRPC 请求耗时
	GRPCRequestDuration *prometheus.HistogramVec

	// 业务指标
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	TransfersQueued    prometheus.Counter
	OutboxPublished    *prometheus.CounterVec
	OutboxFailures     *prometheus.CounterVec
	OptionActive       prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC requests",
		}, []string{"method", "code"}),
		GRPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		InvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "invocations_total",
			Help:      "Option invocations by command and outcome",
		}, []string{"command", "outcome"}),
		InvocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "invocation_duration_seconds",
			Help:      "Option invocation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		TransfersQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "transfers_queued_total",
			Help:      "Transfer instructions written to the outbox",
		}),
		OutboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "outbox_published_total",
			Help:      "Outbox messages published to Kafka",
		}, []string{"topic"}),
		OutboxFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "outbox_publish_failures_total",
			Help:      "Outbox publish attempts that failed",
		}, []string{"topic"}),
		OptionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "option_active",
			Help:      "1 while an option record exists",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCRequestsTotal,
		m.GRPCRequestDuration,
		m.InvocationsTotal,
		m.InvocationDuration,
		m.TransfersQueued,
		m.OutboxPublished,
		m.OutboxFailures,
		m.OptionActive,
	}
}

// Register 注册所有指标，reg 为 nil 时使用默认注册表
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, metric := range m.collectors() {
		if err := reg.Register(metric); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器，返回的 server 用于优雅关闭
func StartHTTPServer(port int, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return srv
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGRPCRequest 记录 gRPC 请求
func (m *Metrics) RecordGRPCRequest(method, code string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordInvocation 记录一次命令调用
func (m *Metrics) RecordInvocation(command, outcome string, duration time.Duration) {
	m.InvocationsTotal.WithLabelValues(command, outcome).Inc()
	m.InvocationDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordTransfers 记录写入发件箱的转账指令数
func (m *Metrics) RecordTransfers(n int) {
	m.TransfersQueued.Add(float64(n))
}

// SetActive 更新期权是否存在
func (m *Metrics) SetActive(active bool) {
	if active {
		m.OptionActive.Set(1)
		return
	}
	m.OptionActive.Set(0)
}

// RecordPublished 记录投递成功
func (m *Metrics) RecordPublished(topic string) {
	m.OutboxPublished.WithLabelValues(topic).Inc()
}

// RecordPublishFailure 记录投递失败
func (m *Metrics) RecordPublishFailure(topic string) {
	m.OutboxFailures.WithLabelValues(topic).Inc()
}
