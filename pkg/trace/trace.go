// Package trace 初始化 OpenTelemetry TracerProvider，使用 OTLP gRPC 导出
package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/optionescrow/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracer 设置全局 TracerProvider 与传播器，返回关闭函数
func InitTracer(serviceName, endpoint string, samplingRate float64) (func(context.Context) error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := NewProvider(serviceName, samplingRate, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info(ctx, "Tracer initialized", "endpoint", endpoint, "sampling_rate", samplingRate)
	return tp.Shutdown, nil
}

// NewProvider 构造 TracerProvider，采样率越界时按 [0,1] 截断
func NewProvider(serviceName string, samplingRate float64, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	switch {
	case samplingRate <= 0:
		samplingRate = 0
	case samplingRate > 1:
		samplingRate = 1
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	opts = append(opts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRate))),
	)
	return sdktrace.NewTracerProvider(opts...)
}
