// Package logging configures structured JSON logging for the homestead
// daemons. Every line carries the service name, and the environment when one
// is set, so a shared log stream can be filtered per process.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON slog handler as the process-wide default and returns
// it. Output keys are timestamp, severity and message. The standard library
// logger is redirected through the same handler so dependency log lines land
// in the same stream.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				attr = slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if trimmed := strings.TrimSpace(env); trimmed != "" {
		attrs = append(attrs, slog.String("env", trimmed))
	}
	tagged := handler.WithAttrs(attrs)

	logger := slog.New(tagged)
	slog.SetDefault(logger)

	bridge := slog.NewLogLogger(tagged, slog.LevelInfo)
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(bridge.Writer())

	return logger
}
