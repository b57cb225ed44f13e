// Package logger builds the bot's slog logger: charm text on the console or JSON
// lines, optionally mirrored as JSON to a file.
package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"sybot/pkg/config"
)

const (
	envFormat    = "SYBOT_LOG_FORMAT"
	envLevel     = "SYBOT_LOG_LEVEL"
	envAddSource = "SYBOT_LOG_ADD_SOURCE"
	envDebug     = "DEBUG"

	formatText = "text"
	formatJSON = "json"

	consolePrefix = "sybot"
)

// Settings is a logging config after environment overrides.
type Settings struct {
	Format    string
	Level     slog.Level
	AddSource bool
	File      string
}

// Resolve applies the environment to cfg. SYBOT_LOG_* override their config
// counterparts and a truthy DEBUG forces the debug level over both.
func Resolve(cfg config.LoggingConfig) (Settings, error) {
	s := Settings{
		Format:    formatText,
		Level:     slog.LevelInfo,
		AddSource: cfg.AddSource,
		File:      strings.TrimSpace(cfg.File),
	}

	format := firstNonEmpty(os.Getenv(envFormat), cfg.Format)
	switch strings.ToLower(format) {
	case "":
	case formatText, formatJSON:
		s.Format = strings.ToLower(format)
	default:
		return Settings{}, fmt.Errorf("unsupported log format %q", format)
	}

	if level := firstNonEmpty(os.Getenv(envLevel), cfg.Level); level != "" {
		parsed, err := parseLevel(level)
		if err != nil {
			return Settings{}, err
		}
		s.Level = parsed
	}
	if envBool(envDebug) {
		s.Level = slog.LevelDebug
	}

	if raw := strings.TrimSpace(os.Getenv(envAddSource)); raw != "" {
		s.AddSource = envBool(envAddSource)
	}
	return s, nil
}

// New builds the process logger on stderr. A configured file gets every line as JSON
// regardless of the console format; the returned func closes it.
func New(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	s, err := Resolve(cfg)
	if err != nil {
		return nil, nil, err
	}

	console := s.handler(os.Stderr)
	if s.File == "" {
		return slog.New(console), func() error { return nil }, nil
	}

	if dir := filepath.Dir(s.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	file, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	return slog.New(fanout{console, newJSONHandler(file, s)}), file.Close, nil
}

func (s Settings) handler(w io.Writer) slog.Handler {
	if s.Format == formatJSON {
		return newJSONHandler(w, s)
	}
	return charmLog.NewWithOptions(w, charmLog.Options{
		Level:           charmLevel(s.Level),
		Prefix:          consolePrefix,
		ReportTimestamp: true,
		ReportCaller:    s.AddSource,
		Formatter:       charmLog.TextFormatter,
	})
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

func parseLevel(text string) (slog.Level, error) {
	if strings.EqualFold(text, "warning") {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return 0, fmt.Errorf("unsupported log level %q", text)
	}
	return level, nil
}

func envBool(key string) bool {
	enabled, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && enabled
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Entry is one JSON log line. component and server_id are lifted out of the fields
// so lines can be filtered per virtual server.
type Entry struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	ServerID  int64          `json:"server_id,omitempty"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

type field struct {
	key   string
	value slog.Value
}

type jsonHandler struct {
	level     slog.Level
	addSource bool

	mu *sync.Mutex
	w  io.Writer

	// fields were added by WithAttrs and already carry their group prefix.
	fields []field
	prefix string
}

func newJSONHandler(w io.Writer, s Settings) *jsonHandler {
	return &jsonHandler{level: s.Level, addSource: s.AddSource, mu: &sync.Mutex{}, w: w}
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := Entry{
		Time:    ts.UTC().Format(time.RFC3339Nano),
		Level:   strings.ToLower(record.Level.String()),
		Message: record.Message,
	}

	for _, f := range h.fields {
		entry.set(f.key, f.value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		for _, f := range flatten(h.prefix, attr) {
			entry.set(f.key, f.value)
		}
		return true
	})

	if h.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.File != "" {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(line, '\n'))
	return err
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = append([]field(nil), h.fields...)
	for _, attr := range attrs {
		next.fields = append(next.fields, flatten(h.prefix, attr)...)
	}
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (e *Entry) set(key string, value slog.Value) {
	switch {
	case key == "component" && value.Kind() == slog.KindString:
		e.Component = value.String()
		return
	case key == "server_id" && value.Kind() == slog.KindInt64:
		e.ServerID = value.Int64()
		return
	}

	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = jsonValue(value)
}

// flatten expands group attrs into dotted keys.
func flatten(prefix string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return nil
	}
	if attr.Value.Kind() != slog.KindGroup {
		return []field{{key: prefix + attr.Key, value: attr.Value}}
	}

	inner := prefix
	if attr.Key != "" {
		inner += attr.Key + "."
	}
	var out []field
	for _, member := range attr.Value.Group() {
		out = append(out, flatten(inner, member)...)
	}
	return out
}

func jsonValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindAny:
		// Errors have no exported fields and would marshal as {}.
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.Any()
	}
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
