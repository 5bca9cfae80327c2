package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue replaces every redacted secret.
const MaskValue = "***REDACTED***"

// sensitiveKeys are attribute keys whose value is always masked entirely.
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"password":            true,
	"passwd":              true,
	"secret":              true,
	"token":               true,
	"api_key":             true,
	"apikey":              true,
	"api-key":             true,
	"access_token":        true,
	"private_key":         true,
	"session":             true,
	"credentials":         true,
}

// sensitiveKeywords mark a key as sensitive when contained in it, e.g.
// "shodan_api_key" or "github_token".
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "apikey", "api_key", "api-key",
	"credential", "private",
}

// wholeValuePatterns match values that are secrets in their entirety.
var wholeValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
	regexp.MustCompile(`^gh[pousr]_[A-Za-z0-9]{36,}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// inlinePatterns locate secrets inside longer strings such as command
// lines. Group 1 is kept, the rest of the match is masked.
var inlinePatterns = []*regexp.Regexp{
	// Authorization: Bearer xyz / X-Api-Key: xyz headers
	regexp.MustCompile(`(?i)((?:proxy-)?authorization:\s*|x-api-key:\s*|cookie:\s*)[^"'\n]+`),
	// FOO_API_KEY=value, GITHUB_TOKEN=value, --password=value
	regexp.MustCompile(`(?i)(\b[A-Z0-9_-]*(?:api[_-]?key|token|secret|passw(?:or)?d)=)[^\s&"']+`),
	// ?apikey=value&
	regexp.MustCompile(`(?i)([?&](?:api[_-]?key|key|token|access_token)=)[^\s&"']+`),
	// --token value, -password value
	regexp.MustCompile(`(?i)(\s--?(?:api[_-]?key|token|secret|password)\s+)[^\s"']+`),
}

// RedactingHandler wraps an slog.Handler and scrubs secrets from every
// attribute before passing the record on.
type RedactingHandler struct {
	handler slog.Handler
}

// NewRedactingHandler wraps handler. A nil handler means
// slog.Default().Handler().
func NewRedactingHandler(handler slog.Handler) *RedactingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &RedactingHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle redacts the record's attributes and message.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return h.handler.Handle(ctx, clean)
}

// WithAttrs returns a handler with the redacted attributes added.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(clean)}
}

// WithGroup returns a handler with the given group name.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		clean := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			clean[i] = redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); s != "" {
			if red := Redact(s); red != s {
				return slog.String(a.Key, red)
			}
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			if red := Redact(err.Error()); red != err.Error() {
				return slog.String(a.Key, red)
			}
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

// Redact returns s with every recognizable secret masked.
func Redact(s string) string {
	trimmed := strings.TrimSpace(s)
	for _, p := range wholeValuePatterns {
		if p.MatchString(trimmed) {
			return MaskValue
		}
	}
	for _, p := range inlinePatterns {
		s = p.ReplaceAllString(s, "${1}"+MaskValue)
	}
	return s
}

func level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// NewLogger returns a text logger that redacts secrets. Verbose selects
// Debug, otherwise only warnings and errors are written.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level(verbose)})
	return slog.New(NewRedactingHandler(h))
}

// NewJSONLogger is NewLogger with JSON output.
func NewJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level(verbose)})
	return slog.New(NewRedactingHandler(h))
}
