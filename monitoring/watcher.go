package monitoring

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const artifactOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// ArtifactWatcher 监控模型文件，被修改时提示需要重启
// 已加载到内存的模型不会被替换
type ArtifactWatcher struct {
	watcher  *fsnotify.Watcher
	paths    map[string]bool
	logger   *zap.Logger
	onChange func(path string, op fsnotify.Op)

	closeOnce sync.Once
	closeErr  error
}

// NewArtifactWatcher 创建监控器并注册文件所在目录
func NewArtifactWatcher(paths []string, logger *zap.Logger) (*ArtifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &ArtifactWatcher{
		watcher: watcher,
		paths:   make(map[string]bool, len(paths)),
		logger:  logger,
	}
	dirs := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		w.paths[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// OnChange 设置回调，需在Run之前调用
func (w *ArtifactWatcher) OnChange(fn func(path string, op fsnotify.Op)) {
	w.onChange = fn
}

// Close 释放inotify句柄，可重复调用
func (w *ArtifactWatcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.watcher.Close()
	})
	return w.closeErr
}

// Run 处理文件事件直到ctx结束，退出时关闭监控器
func (w *ArtifactWatcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.paths[filepath.Clean(event.Name)] || !event.Op.Has(artifactOps) {
				continue
			}
			w.logger.Warn("artifact changed on disk, restart to load it",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()))
			if w.onChange != nil {
				w.onChange(event.Name, event.Op)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("artifact watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}
