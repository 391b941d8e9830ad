// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

type discardHandler struct{}

// DiscardHandler returns a no-op handler.
func DiscardHandler() slog.Handler {
	return &discardHandler{}
}

func (h *discardHandler) Handle(_ context.Context, _ slog.Record) error {
	return nil
}

func (h *discardHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return false
}

func (h *discardHandler) WithGroup(_ string) slog.Handler {
	return &discardHandler{}
}

func (h *discardHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return &discardHandler{}
}

// TerminalHandler renders records in a human-friendly single-line format.
type TerminalHandler struct {
	mu    sync.Mutex
	wr    io.Writer
	lvl   *slog.LevelVar
	attrs []slog.Attr
}

// NewTerminalHandler creates a handler writing to wr, filtering records
// below the given minimum level.
func NewTerminalHandler(wr io.Writer, minLevel slog.Level) *TerminalHandler {
	lvl := new(slog.LevelVar)
	lvl.Set(minLevel)
	return &TerminalHandler{wr: wr, lvl: lvl}
}

// SetLevel updates the minimum level at runtime.
func (h *TerminalHandler) SetLevel(level slog.Level) {
	h.lvl.Set(level)
}

func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl.Level()
}

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(levelString(r.Level))
	sb.WriteByte('[')
	sb.WriteString(r.Time.Format("01-02|15:04:05.000"))
	sb.WriteString("] ")
	sb.WriteString(r.Message)

	writeAttr := func(a slog.Attr) bool {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		fmt.Fprintf(&sb, "%v", a.Value.Any())
		return true
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(writeAttr)
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.wr, sb.String())
	return err
}

func (h *TerminalHandler) WithGroup(_ string) slog.Handler {
	panic("not implemented")
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TerminalHandler{
		wr:    h.wr,
		lvl:   h.lvl,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func levelString(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO "
	case l <= LevelWarn:
		return "WARN "
	case l <= LevelError:
		return "ERROR"
	default:
		return "CRIT "
	}
}
