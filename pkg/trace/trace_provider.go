// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/go-arcade/orchestrator/pkg/log"
	"github.com/go-arcade/orchestrator/pkg/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	ExporterNone     = "none"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// Conf configures span export for the orchestrator process.
type Conf struct {
	Enabled        bool              `mapstructure:"enabled"`
	ServiceName    string            `mapstructure:"serviceName"`
	ServiceVersion string            `mapstructure:"serviceVersion"`
	ExporterType   string            `mapstructure:"exporterType"`
	Endpoint       string            `mapstructure:"endpoint"`
	Insecure       bool              `mapstructure:"insecure"`
	Headers        map[string]string `mapstructure:"headers"`
	SampleRatio    float64           `mapstructure:"sampleRatio"`
	Batch          BatchConf         `mapstructure:"batch"`
}

type BatchConf struct {
	MaxQueueSize       int           `mapstructure:"maxQueueSize"`
	BatchTimeout       time.Duration `mapstructure:"batchTimeout"`
	ExportTimeout      time.Duration `mapstructure:"exportTimeout"`
	MaxExportBatchSize int           `mapstructure:"maxExportBatchSize"`
}

func (c *Conf) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "orchestrator"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = version.GetVersion().Version
	}
	if c.ExporterType == "" {
		c.ExporterType = ExporterNone
	}
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
	if c.Batch.MaxQueueSize == 0 {
		c.Batch.MaxQueueSize = 2048
	}
	// bare integers in yaml decode as nanoseconds; treat them as seconds
	c.Batch.BatchTimeout = secondsIfBare(c.Batch.BatchTimeout, 5*time.Second)
	c.Batch.ExportTimeout = secondsIfBare(c.Batch.ExportTimeout, 30*time.Second)
	if c.Batch.MaxExportBatchSize == 0 {
		c.Batch.MaxExportBatchSize = 512
	}
}

func secondsIfBare(d, def time.Duration) time.Duration {
	switch {
	case d <= 0:
		return def
	case d < time.Second:
		return d * time.Second
	default:
		return d
	}
}

var provider *sdktrace.TracerProvider

// Init installs the global tracer provider. A disabled config installs a noop provider.
func Init(ctx context.Context, cfg Conf) error {
	cfg.SetDefaults()

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug("tracing disabled")
		return nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	))
	if err != nil {
		return fmt.Errorf("create trace resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create %s exporter: %w", cfg.ExporterType, err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter,
		sdktrace.WithMaxQueueSize(cfg.Batch.MaxQueueSize),
		sdktrace.WithBatchTimeout(cfg.Batch.BatchTimeout),
		sdktrace.WithExportTimeout(cfg.Batch.ExportTimeout),
		sdktrace.WithMaxExportBatchSize(cfg.Batch.MaxExportBatchSize),
	)
	provider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Infow("tracing initialized",
		"exporter", cfg.ExporterType,
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
	)
	return nil
}

func newExporter(ctx context.Context, cfg Conf) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	case ExporterOTLPHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	default:
		return nil, fmt.Errorf("unsupported exporter type %q", cfg.ExporterType)
	}
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}
