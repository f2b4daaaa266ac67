package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event levels as they appear in the unit log files
const (
	LevelDebug   = "DEBUG"
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

const eventTimeLayout = "2006-01-02T15:04:05.000000Z"

var (
	unitNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

	reservedEventFields = map[string]struct{}{
		"timestamp":  {},
		"unit":       {},
		"level":      {},
		"event":      {},
		"message":    {},
		"process_id": {},
	}
)

// ValidUnitName reports whether name can be used as a unit log file name
func ValidUnitName(name string) bool {
	return unitNamePattern.MatchString(name) && !strings.Contains(name, "..")
}

// EventRecorder records structured unit events. Implementations never fail.
type EventRecorder interface {
	Log(unit, level, event, message string, fields map[string]interface{})
}

// NopEvents discards every event
type NopEvents struct{}

// Log implements EventRecorder
func (NopEvents) Log(string, string, string, string, map[string]interface{}) {}

// Event is one entry of a unit log
type Event struct {
	Time    time.Time
	Unit    string
	Level   string
	Name    string
	Message string
	Fields  map[string]interface{}
}

// EventLogConfig holds configuration for the EventLog
type EventLogConfig struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent writers
}

// DefaultEventLogConfig returns the default configuration
func DefaultEventLogConfig() EventLogConfig {
	return EventLogConfig{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

type unitSink struct {
	file *os.File
	core zapcore.Core
}

// EventLog appends JSON lines to <dir>/<unit>.log. Once started, writes happen
// on background workers; before Start or after Stop they happen inline.
type EventLog struct {
	dir         string
	logger      *zap.Logger
	metrics     *Metrics
	events      chan *Event
	workerCount int
	bufferSize  int
	pid         int

	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool

	sinksMu sync.Mutex
	sinks   map[string]*unitSink
}

// NewEventLog creates a new EventLog writing below dir
func NewEventLog(dir string, logger *zap.Logger, metrics *Metrics, cfg EventLogConfig) *EventLog {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultEventLogConfig().BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultEventLogConfig().WorkerCount
	}

	return &EventLog{
		dir:         dir,
		logger:      logger,
		metrics:     metrics,
		events:      make(chan *Event, cfg.BufferSize),
		workerCount: cfg.WorkerCount,
		bufferSize:  cfg.BufferSize,
		pid:         os.Getpid(),
		sinks:       make(map[string]*unitSink),
	}
}

// Dir returns the directory holding the unit log files
func (l *EventLog) Dir() string {
	return l.dir
}

// Start starts the background writers
func (l *EventLog) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return fmt.Errorf("event log already started")
	}

	l.events = make(chan *Event, l.bufferSize)
	for i := 0; i < l.workerCount; i++ {
		l.wg.Add(1)
		go l.worker(l.events)
	}

	l.started = true
	l.logger.Info("started event log",
		zap.String("dir", l.dir),
		zap.Int("worker_count", l.workerCount),
		zap.Int("buffer_size", l.bufferSize))

	return nil
}

// Stop drains pending events and closes the unit files
func (l *EventLog) Stop(timeout time.Duration) error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return fmt.Errorf("event log not started")
	}
	l.started = false
	pending := len(l.events)
	close(l.events)
	l.mu.Unlock()

	l.logger.Info("stopping event log", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.closeSinks()
		l.logger.Info("event log stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("event log stop timeout after %v", timeout)
	}
}

// Log records an event. It never blocks on a full buffer: the event is
// dropped with a warning instead.
func (l *EventLog) Log(unit, level, event, message string, fields map[string]interface{}) {
	if !ValidUnitName(unit) {
		l.logger.Warn("invalid unit name, dropping event",
			zap.String("unit", unit),
			zap.String("event", event))
		return
	}

	ev := &Event{
		Time:    time.Now().UTC(),
		Unit:    unit,
		Level:   strings.ToUpper(level),
		Name:    event,
		Message: message,
		Fields:  copyFields(fields),
	}

	l.mu.RLock()
	if !l.started {
		l.mu.RUnlock()
		l.write(ev)
		return
	}

	select {
	case l.events <- ev:
	default:
		l.logger.Warn("event channel full, dropping event",
			zap.String("unit", unit),
			zap.String("event", event))
		l.metrics.RecordEventDropped(unit)
	}
	l.mu.RUnlock()
}

func (l *EventLog) worker(events <-chan *Event) {
	defer l.wg.Done()

	for ev := range events {
		l.write(ev)
	}
}

func (l *EventLog) write(ev *Event) {
	lvl := zapLevel(ev.Level)
	l.logger.Check(lvl, fmt.Sprintf("[%s] %s: %s", ev.Unit, ev.Name, ev.Message)).Write()

	sink, err := l.sink(ev.Unit)
	if err != nil {
		l.logger.Error("error writing to unit log",
			zap.Error(err),
			zap.String("unit", ev.Unit),
			zap.String("event", ev.Name))
		return
	}

	fields := make([]zapcore.Field, 0, 4+len(ev.Fields))
	fields = append(fields,
		zap.String("unit", ev.Unit),
		zap.String("level", ev.Level),
		zap.String("event", ev.Name),
		zap.Int("process_id", l.pid),
	)

	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		if _, reserved := reservedEventFields[k]; !reserved {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, ev.Fields[k]))
	}

	entry := zapcore.Entry{Level: lvl, Time: ev.Time, Message: ev.Message}
	if err := sink.core.Write(entry, fields); err != nil {
		l.logger.Error("error writing to unit log", zap.Error(err), zap.String("unit", ev.Unit))
	}
}

func (l *EventLog) sink(unit string) (*unitSink, error) {
	l.sinksMu.Lock()
	defer l.sinksMu.Unlock()

	if s, ok := l.sinks[unit]; ok {
		return s, nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, unit+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open unit log: %w", err)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     utcTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	s := &unitSink{
		file: f,
		core: zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), zapcore.DebugLevel),
	}
	l.sinks[unit] = s
	return s, nil
}

func (l *EventLog) closeSinks() {
	l.sinksMu.Lock()
	defer l.sinksMu.Unlock()

	for unit, s := range l.sinks {
		if err := s.file.Close(); err != nil {
			l.logger.Warn("failed to close unit log", zap.String("unit", unit), zap.Error(err))
		}
		delete(l.sinks, unit)
	}
}

func utcTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(eventTimeLayout))
}

func zapLevel(level string) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarning, "WARN":
		return zapcore.WarnLevel
	case LevelError, "CRITICAL":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
