package config

import (
	"fmt"
	"strings"
	"sync"

	"trademux/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReloadListener 在主配置文件变更并重新解析成功后被调用。
type ReloadListener func(*Config)

// Watcher 监听主配置文件的 FS 事件并热更新可运行时调整的字段
// （日志级别、限流上限等）。结构性字段（数据库路径、监听地址）
// 仍需重启生效，由监听方自行取舍。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   *Config
	listeners []ReloadListener
}

// NewWatcher 基于已加载的配置开始监听其源文件。
func NewWatcher(cfg *Config) (*Watcher, error) {
	if cfg == nil || strings.TrimSpace(cfg.SourcePath()) == "" {
		return nil, fmt.Errorf("config watcher requires a loaded config")
	}
	v := viper.New()
	v.SetConfigFile(cfg.SourcePath())
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config for watch failed: %w", err)
	}
	w := &Watcher{path: cfg.SourcePath(), v: v, current: cfg}
	v.OnConfigChange(func(evt fsnotify.Event) {
		next, err := Load(w.path)
		if err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		w.mu.Lock()
		w.current = next
		listeners := append([]ReloadListener(nil), w.listeners...)
		w.mu.Unlock()
		logger.SetLevel(next.App.LogLevel)
		logger.Infof("config reloaded from %s", evt.Name)
		for _, fn := range listeners {
			if fn == nil {
				continue
			}
			go func(cb ReloadListener) {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("config listener panic: %v", r)
					}
				}()
				cb(next)
			}(fn)
		}
	})
	v.WatchConfig()
	return w, nil
}

// Current 返回最近一次成功加载的配置。
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe 注册热更新监听器。
func (w *Watcher) Subscribe(fn ReloadListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}
