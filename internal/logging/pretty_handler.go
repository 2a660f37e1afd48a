package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var levelColors = map[string]string{
	"ERROR": "\x1b[31m",
	"WARN":  "\x1b[33m",
	"DEBUG": "\x1b[90m",
}

const ansiReset = "\x1b[0m"

// consoleHandler writes one human-oriented line per record:
//
//	2026-05-01T09:00:00Z WARN targeting [story-7 p3]: bbox discarded issue_id=gemini-p3-1
//
// The story and page scope is lifted out of the key/value tail when a story
// is present; a lone page stays as a regular pair.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	preset    []field
	groups    []string
	addSource bool
	color     bool
}

type field struct {
	key   string
	value slog.Value
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: lvl, addSource: addSource, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = append([]field(nil), h.preset...)
	for _, attr := range attrs {
		clone.preset = appendFlat(clone.preset, h.groups, attr)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append(make([]field, 0, len(h.preset)+record.NumAttrs()), h.preset...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFlat(fields, h.groups, attr)
		return true
	})
	component, story, page, rest := splitScope(fields)

	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	var line bytes.Buffer
	line.WriteString(when.UTC().Format(time.RFC3339))
	line.WriteByte(' ')
	line.WriteString(h.label(record.Level))
	if component != "" {
		line.WriteByte(' ')
		line.WriteString(component)
	}
	if story != "" {
		line.WriteString(" [")
		line.WriteString(story)
		if page != "" {
			line.WriteString(" p")
			line.WriteString(page)
		}
		line.WriteByte(']')
	}
	if component != "" || story != "" {
		line.WriteByte(':')
	}
	line.WriteByte(' ')
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	line.WriteString(msg)
	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&line, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range rest {
		fmt.Fprintf(&line, " %s=%s", f.key, renderValue(f.value))
	}
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(line.Bytes())
	return err
}

// splitScope pulls the first component, story_id, and page out of fields.
// page is only consumed when a story is also present.
func splitScope(fields []field) (component, story, page string, rest []field) {
	rest = make([]field, 0, len(fields))
	pageAt := -1
	for _, f := range fields {
		switch {
		case f.key == FieldComponent && component == "":
			component = f.value.String()
			continue
		case f.key == FieldStoryID && story == "":
			story = f.value.String()
			continue
		case f.key == FieldPage && pageAt < 0:
			pageAt = len(rest)
		}
		rest = append(rest, f)
	}
	if story != "" && pageAt >= 0 {
		page = rest[pageAt].value.String()
		rest = append(rest[:pageAt], rest[pageAt+1:]...)
	}
	return component, story, page, rest
}

func (h *consoleHandler) label(level slog.Level) string {
	name := "DEBUG"
	switch {
	case level >= slog.LevelError:
		name = "ERROR"
	case level >= slog.LevelWarn:
		name = "WARN"
	case level >= slog.LevelInfo:
		name = "INFO"
	}
	if code, ok := levelColors[name]; ok && h.color {
		return code + name + ansiReset
	}
	return name
}

func appendFlat(dst []field, groups []string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		nested := groups
		if attr.Key != "" {
			nested = append(append([]string(nil), groups...), attr.Key)
		}
		for _, child := range attr.Value.Group() {
			dst = appendFlat(dst, nested, child)
		}
		return dst
	}
	if attr.Key == "" {
		return dst
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(dst, field{key: key, value: attr.Value})
}

func renderValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " =\"\t\n\r") || strings.IndexFunc(s, func(r rune) bool { return r < ' ' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
