package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/tasklane/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the zap logger. Zero sampling values fall back to
// 100 initial / 100 thereafter per second.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string

	SamplingInitial     int
	SamplingThereafter  int
	SamplingWindow      time.Duration
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the root logger, installs it as the zap global and flushes it on
// shutdown.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = level
	zapCfg.Encoding = normalizeFormat(cfg.Format)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	// Sampling is applied through buildOptions.
	zapCfg.Sampling = nil

	root, err := zapCfg.Build(buildOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	root = root.With(serviceFields(cfg)...)
	zap.ReplaceGlobals(root)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			_ = root.Sync()
			return nil
		}})
	}
	return root, nil
}

func parseLevel(raw string) (zap.AtomicLevel, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	level, err := zap.ParseAtomicLevel(strings.ToLower(raw))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

func buildOptions(cfg Config) []zap.Option {
	var options []zap.Option
	if cfg.IncludeCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	initial := valueOr(cfg.SamplingInitial, 100)
	thereafter := valueOr(cfg.SamplingThereafter, 100)
	window := cfg.SamplingWindow
	if window <= 0 {
		window = time.Second
	}
	return append(options, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewSamplerWithOptions(core, window, initial, thereafter)
	}))
}

func serviceFields(cfg Config) []zap.Field {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "tasklane"
	}
	return []zap.Field{
		zap.String("service", service),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	}
}

func valueOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return "console"
	}
	return "json"
}

// FromContext returns the global logger enriched with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext enriches base with correlation fields found in ctx.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 5)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if orgID := obscontext.OrgIDFromContext(ctx); orgID != "" {
		fields = append(fields, zap.String("org_id", orgID))
	}
	if actorID := obscontext.ActorIDFromContext(ctx); actorID != "" {
		fields = append(fields, zap.String("actor_id", actorID))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
