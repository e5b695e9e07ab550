// Package observability configures process-wide logging.
//
// Logs always go to stderr. When OTEL_EXPORTER_OTLP_ENDPOINT is set they are
// additionally exported through the OpenTelemetry log pipeline.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/florianilch/directus-client"

// Environment variables controlling the OpenTelemetry log pipeline.
const (
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPProtocol = "OTEL_EXPORTER_OTLP_PROTOCOL"
)

var (
	mu       sync.Mutex
	provider *sdklog.LoggerProvider
)

// Instrument installs the default slog logger. format is "text" or "json".
func Instrument(level slog.Level, format string) error {
	return instrument(context.Background(), level, format, os.Getenv)
}

func instrument(ctx context.Context, level slog.Level, format string, getenv func(string) string) error {
	handler, err := newConsoleHandler(level, format)
	if err != nil {
		return err
	}

	if getenv(EnvOTLPEndpoint) != "" {
		lp, err := newLoggerProvider(ctx, level, getenv(EnvOTLPProtocol))
		if err != nil {
			return fmt.Errorf("failed to set up log exporter: %w", err)
		}

		mu.Lock()
		previous := provider
		provider = lp
		mu.Unlock()
		if previous != nil {
			_ = previous.Shutdown(ctx)
		}

		global.SetLoggerProvider(lp)
		handler = fanout{handler, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(lp))}
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Shutdown flushes and stops the OpenTelemetry log pipeline, if any.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	lp := provider
	provider = nil
	mu.Unlock()

	if lp == nil {
		return nil
	}
	return lp.Shutdown(ctx)
}

func newConsoleHandler(level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(os.Stderr, opts), nil
	case "json":
		return slog.NewJSONHandler(os.Stderr, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func newLoggerProvider(ctx context.Context, level slog.Level, protocol string) (*sdklog.LoggerProvider, error) {
	var (
		exporter sdklog.Exporter
		err      error
	)
	switch strings.ToLower(protocol) {
	case "", "http/protobuf", "http/json":
		exporter, err = otlploghttp.New(ctx)
	case "grpc":
		exporter, err = otlploggrpc.New(ctx)
	case "console":
		exporter, err = stdoutlog.New()
	default:
		return nil, fmt.Errorf("unsupported %s: %s", EnvOTLPProtocol, protocol)
	}
	if err != nil {
		return nil, err
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor)), nil
}

// severity maps slog levels onto the OpenTelemetry severity scale.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// fanout dispatches records to every handler that accepts them.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
