package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/application/dto"
)

const (
	defaultDebounce = 500 * time.Millisecond
	processedDir    = "processed"
	failedDir       = "failed"
)

// WatchConfig holds configuration for the watch command
type WatchConfig struct {
	RunID    string
	Dir      string
	Debounce time.Duration
	Output   OutputConfig
}

// WatchCommand processes actuals CSVs dropped into an inbox directory.
// Each file is handled once, then moved to processed/ or failed/.
type WatchCommand struct {
	env    *Environment
	config WatchConfig

	// onProcessed observes every handled file
	onProcessed func(path string, result *dto.WorkflowResult, err error)
}

// NewWatchCommand creates a new watch command
func NewWatchCommand(env *Environment, config WatchConfig) *WatchCommand {
	if config.Debounce <= 0 {
		config.Debounce = defaultDebounce
	}
	return &WatchCommand{env: env, config: config}
}

// Execute watches until ctx is cancelled
func (c *WatchCommand) Execute(ctx context.Context) error {
	if c.config.RunID == "" {
		return fmt.Errorf("a run id is required")
	}
	if c.config.Dir == "" {
		return fmt.Errorf("an inbox directory is required")
	}
	// fail fast on an unknown run rather than on the first upload
	if _, err := c.env.Workflow.Run(ctx, c.config.RunID); err != nil {
		return err
	}
	for _, dir := range []string{c.config.Dir, filepath.Join(c.config.Dir, processedDir), filepath.Join(c.config.Dir, failedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(c.config.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.config.Dir, err)
	}
	c.env.Logger.Info("watching for actuals", zap.String("dir", c.config.Dir), zap.String("run_id", c.config.RunID))

	// files dropped while nobody was watching
	existing, err := filepath.Glob(filepath.Join(c.config.Dir, "*.csv"))
	if err != nil {
		return fmt.Errorf("failed to list inbox: %w", err)
	}
	sort.Strings(existing)
	for _, path := range existing {
		c.handle(ctx, path)
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(c.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".csv") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.env.Logger.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			var ready []string
			for path, last := range pending {
				if time.Since(last) >= c.config.Debounce {
					ready = append(ready, path)
				}
			}
			sort.Strings(ready)
			for _, path := range ready {
				delete(pending, path)
				c.handle(ctx, path)
			}
		}
	}
}

// handle processes one upload and files it away; failures are logged, not fatal
func (c *WatchCommand) handle(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	result, err := processUpload(ctx, c.env, c.config.RunID, path)
	dest := processedDir
	if err != nil {
		dest = failedDir
		c.env.Logger.Error("actuals upload failed", zap.String("file", path), zap.Error(err))
	} else if genErr := generate(c.env, result, c.config.Output); genErr != nil {
		c.env.Logger.Warn("failed to print result", zap.Error(genErr))
	}

	target := filepath.Join(filepath.Dir(path), dest, filepath.Base(path))
	if mvErr := os.Rename(path, target); mvErr != nil {
		c.env.Logger.Warn("failed to move upload", zap.String("file", path), zap.Error(mvErr))
	}
	if c.onProcessed != nil {
		c.onProcessed(path, result, err)
	}
}
