// Package logx monta o *slog.Logger usado pelos binários.
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel aceita debug, info, warn/warning e error (sem diferenciar caixa).
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		if strings.EqualFold(strings.TrimSpace(s), "warning") {
			return slog.LevelWarn, nil
		}
		return slog.LevelInfo, fmt.Errorf("logx: invalid level %q", s)
	}
	return lvl, nil
}

// New cria um logger JSON (padrão) ou texto ("text").
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("logx: invalid format %q", format)
}
