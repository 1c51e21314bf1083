package logger

import (
	"context"

	"github.com/rankgate/rankgate/internal/config"
	"github.com/rankgate/rankgate/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger to provide logging functionality.
type Logger struct {
	*zap.SugaredLogger
}

// L is a global logger for convenience. Prefer dependency injection
// everywhere except one-off scripts.
var L *Logger

// NewLogger creates and returns a new Logger instance.
func NewLogger(cfg *config.Configuration) (*Logger, error) {
	zapCfg := zap.NewProductionConfig()

	if cfg.Logging.Level == types.LogLevelDebug {
		zapCfg = zap.NewDevelopmentConfig()
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

func init() {
	L, _ = NewLogger(config.GetDefaultConfig())
}

func GetLogger() *Logger {
	if L == nil {
		L, _ = NewLogger(config.GetDefaultConfig())
	}
	return L
}

func GetLoggerWithContext(ctx context.Context) *Logger {
	return GetLogger().WithContext(ctx)
}

func (l *Logger) Debugf(template string, args ...interface{}) { l.SugaredLogger.Debugf(template, args...) }
func (l *Logger) Infof(template string, args ...interface{})  { l.SugaredLogger.Infof(template, args...) }
func (l *Logger) Warnf(template string, args ...interface{})  { l.SugaredLogger.Warnf(template, args...) }
func (l *Logger) Errorf(template string, args ...interface{}) { l.SugaredLogger.Errorf(template, args...) }
func (l *Logger) Fatalf(template string, args ...interface{}) { l.SugaredLogger.Fatalf(template, args...) }

// WithContext tags every subsequent line with request/user identifiers
// pulled off the context, the way a request-scoped logger should.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(
			"request_id", types.GetRequestID(ctx),
			"user_id", types.GetUserID(ctx),
		),
	}
}

// retryableHTTPLogger adapts our Logger to go-retryablehttp's logging interface.
type retryableHTTPLogger struct {
	logger *Logger
}

// GetRetryableHTTPLogger returns a retryable HTTP client-compatible logger,
// used by the Authorizer Client's transport.
func (l *Logger) GetRetryableHTTPLogger() *retryableHTTPLogger {
	return &retryableHTTPLogger{logger: l}
}

func (r *retryableHTTPLogger) Printf(format string, v ...interface{}) {
	r.logger.Infof(format, v...)
}
