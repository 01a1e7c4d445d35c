package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const appName = "invoice-processing"

// Options configures the process logger.
type Options struct {
	// Service is the process role, "api" or "worker".
	Service string
	Level   string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New builds the JSON logger shared by the api and worker processes.
// Every record carries app and service; user_email values are masked.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       parseLevel(opts.Level),
		ReplaceAttr: maskUserEmail,
	})
	return slog.New(handler).With("app", appName, "service", opts.Service)
}

func NewJSONLogger(service, level string) *slog.Logger {
	return New(Options{Service: service, Level: level})
}

func maskUserEmail(_ []string, a slog.Attr) slog.Attr {
	if a.Key != "user_email" || a.Value.Kind() != slog.KindString {
		return a
	}
	return slog.String(a.Key, MaskEmail(a.Value.String()))
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		if email == "" {
			return ""
		}
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
