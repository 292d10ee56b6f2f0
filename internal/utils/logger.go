package utils

import (
	"context"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

type requestIDKey struct{}

var logger = newLogger()

func newLogger() *log.Logger {
	l := log.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return l
}

// ConfigureLogger applies LOG_LEVEL / LOG_FORMAT style settings.
func ConfigureLogger(level, format string) {
	if lvl, err := log.ParseLevel(strings.TrimSpace(level)); err == nil {
		logger.SetLevel(lvl)
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	}
}

// Logger exposes the shared logger for middleware and bootstrap code.
func Logger() *log.Logger {
	return logger
}

// WithRequestID stores the request id for downstream LogEvent calls.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}

// LogEvent prints standardized log line with module/action/request_id.
// Avoid logging sensitive payload; message should be summarized.
func LogEvent(ctx context.Context, module, action, message string) {
	entry(ctx, module, action).Info(message)
}

// LogFailure is LogEvent at warning level with the error attached.
func LogFailure(ctx context.Context, module, action string, err error) {
	entry(ctx, module, action).WithError(err).Warn("failed")
}

func entry(ctx context.Context, module, action string) *log.Entry {
	return logger.WithFields(log.Fields{
		"module":     strings.ToUpper(module),
		"action":     action,
		"request_id": strings.TrimSpace(RequestIDFrom(ctx)),
	})
}
