package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Live holds the current config and swaps it when the file changes.
type Live struct {
	mu  sync.RWMutex
	cfg *Config
}

// Static wraps a fixed config, for callers that do not watch a file.
func Static(cfg *Config) *Live {
	return &Live{cfg: cfg}
}

// Watch loads path and keeps the returned handle current as the file is
// edited. A reload that fails to decode keeps the previous config.
func Watch(path string) (*Live, error) {
	v, err := open(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	l := &Live{cfg: cfg}
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			slog.Warn("config reload failed", "file", e.Name, "error", err)
			return
		}
		l.mu.Lock()
		l.cfg = next
		l.mu.Unlock()
		slog.Info("config reloaded", "file", e.Name)
	})
	v.WatchConfig()
	return l, nil
}

func (l *Live) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}
