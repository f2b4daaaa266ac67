package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mintresearch/agent-engine/internal/observability"
	"go.uber.org/zap"
)

// DefaultDebounceInterval is the quiet period before a change is re-linted
const DefaultDebounceInterval = 200 * time.Millisecond

// Watcher re-lints the rules directory whenever a rule source changes.
// Checks always read rules from disk, so the watcher only reports problems
// early; it never holds rule state of its own.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	metrics  *observability.Metrics
	events   observability.EventRecorder
	logger   *zap.Logger
	onReload func(*LintReport)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a Watcher for the loader's directory. onReload, when
// non-nil, receives every lint report.
func NewWatcher(
	loader *Loader,
	interval time.Duration,
	metrics *observability.Metrics,
	events observability.EventRecorder,
	logger *zap.Logger,
	onReload func(*LintReport),
) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	if events == nil {
		events = observability.NopEvents{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		loader:   loader,
		watcher:  fsw,
		debounce: NewDebouncer(interval),
		metrics:  metrics,
		events:   events,
		logger:   logger,
		onReload: onReload,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	info, err := os.Stat(w.loader.Dir())
	if err != nil {
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("rules path %s is not a directory", w.loader.Dir())
	}
	if err := w.watcher.Add(w.loader.Dir()); err != nil {
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	w.running = true
	go w.loop()

	w.logger.Info("rule watcher started", zap.String("dir", w.loader.Dir()))
	return nil
}

// Stop stops watching and waits for the loop to exit. Stop is safe to call
// on a watcher that was never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.logger.Info("rule watcher stopped")
	return nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !shouldProcess(event) {
				continue
			}
			w.logger.Debug("rule source changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			w.debounce.Trigger(w.relint)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("rule watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) relint() {
	report, err := Lint(w.loader)
	if err != nil {
		w.metrics.RecordRuleReload(false)
		w.logger.Error("rule reload failed", zap.Error(err))
		return
	}

	w.metrics.RecordRuleReload(report.OK())
	if report.OK() {
		w.logger.Info("rules reloaded", zap.Int("sources", report.Sources))
		w.events.Log(EventUnit, observability.LevelInfo, "rules_reloaded", "Rule sources changed and passed lint",
			map[string]interface{}{"rule_count": report.Sources})
	} else {
		for _, issue := range report.Issues {
			w.logger.Warn("rule lint issue",
				zap.String("source", issue.Source),
				zap.String("issue", issue.Message),
			)
		}
		w.events.Log(EventUnit, observability.LevelWarning, "rules_reload_invalid", "Rule sources changed and failed lint",
			map[string]interface{}{"rule_count": report.Sources, "issue_count": len(report.Issues)})
	}

	if w.onReload != nil {
		w.onReload(report)
	}
}

func shouldProcess(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	return !strings.HasPrefix(base, ".") && strings.HasSuffix(base, SourceSuffix)
}

// Debouncer collects rapid events and runs the latest callback only after a
// quiet period.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
	wg       sync.WaitGroup
}

// NewDebouncer creates a new debouncer
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.interval, func() {
		defer d.wg.Done()

		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback and waits for a running one to finish
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.timer = nil
	d.callback = nil
	d.mu.Unlock()

	d.wg.Wait()
}
