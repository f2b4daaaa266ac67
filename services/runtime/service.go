package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mintresearch/agent-engine/config"
	"github.com/mintresearch/agent-engine/internal/observability"
	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/services"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EventUnit is the unit name status queries log their events under
const EventUnit = "status_api"

const (
	timestampLayout = "2006-01-02T15:04:05Z"
	maxLogLineSize  = 1 << 20
)

var areaPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// StatusResult lists the registered units
type StatusResult struct {
	Units     []models.Unit `json:"units"`
	Count     int           `json:"count"`
	Timestamp string        `json:"timestamp"`
}

// LogsResult holds the tail of one unit's event log
type LogsResult struct {
	Unit      string   `json:"unit"`
	Logs      []string `json:"logs"`
	Count     int      `json:"count"`
	Timestamp string   `json:"timestamp"`
}

// Service answers read-only questions about the running system: which units
// are registered, what they logged and what state files they left behind.
type Service struct {
	registryFile string
	logDir       string
	stateDir     string
	tailLines    int
	events       observability.EventRecorder
	logger       *zap.Logger
}

// NewService creates a new runtime status service
func NewService(cfg config.RuntimeConfig, events observability.EventRecorder, logger *zap.Logger) *Service {
	if events == nil {
		events = observability.NopEvents{}
	}
	tail := cfg.LogTailLines
	if tail <= 0 {
		tail = 50
	}
	return &Service{
		registryFile: cfg.RegistryFile,
		logDir:       cfg.EventLogDir,
		stateDir:     cfg.StateDir,
		tailLines:    tail,
		events:       events,
		logger:       logger,
	}
}

// Status reads the unit registry
func (s *Service) Status(ctx context.Context) (*StatusResult, error) {
	s.events.Log(EventUnit, observability.LevelInfo, "API_REQUEST", "Received request to get MCP status", nil)

	raw, err := os.ReadFile(s.registryFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.events.Log(EventUnit, observability.LevelError, "FILE_NOT_FOUND",
				fmt.Sprintf("MCP register file not found: %s", s.registryFile), nil)
			return nil, services.NewDomainError(services.ErrorTypeNotFound,
				fmt.Sprintf("unit registry not found: %s", s.registryFile), nil).
				WithDetail("path", s.registryFile)
		}
		return nil, services.WrapInternal("failed to read unit registry", err)
	}

	var registry models.Registry
	if err := yaml.Unmarshal(raw, &registry); err != nil {
		s.events.Log(EventUnit, observability.LevelError, "API_ERROR",
			fmt.Sprintf("Error retrieving MCP status: %v", err), nil)
		return nil, services.WrapInternal("failed to parse unit registry", err)
	}

	units := registry.Units
	if units == nil {
		units = []models.Unit{}
	}

	s.events.Log(EventUnit, observability.LevelInfo, "API_RESPONSE", "Successfully retrieved MCP status",
		map[string]interface{}{"unit_count": len(units)})

	return &StatusResult{
		Units:     units,
		Count:     len(units),
		Timestamp: now(),
	}, nil
}

// Logs returns the last lines of <EventLogDir>/<unit>.log, trimmed
func (s *Service) Logs(ctx context.Context, unit string) (*LogsResult, error) {
	if !observability.ValidUnitName(unit) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid unit name", nil).
			WithDetail("unit", unit)
	}

	s.events.Log(EventUnit, observability.LevelInfo, "API_REQUEST",
		fmt.Sprintf("Received request to get logs for unit: %s", unit), nil)

	path := filepath.Join(s.logDir, unit+".log")
	lines, err := tail(path, s.tailLines)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.events.Log(EventUnit, observability.LevelError, "FILE_NOT_FOUND",
				fmt.Sprintf("Log file not found for unit: %s", unit), nil)
			return nil, services.NewDomainError(services.ErrorTypeNotFound,
				fmt.Sprintf("log file not found for unit: %s", unit), nil).
				WithDetail("unit", unit)
		}
		return nil, services.WrapInternal("failed to read log file", err)
	}

	s.events.Log(EventUnit, observability.LevelInfo, "API_RESPONSE",
		fmt.Sprintf("Successfully retrieved logs for unit: %s", unit),
		map[string]interface{}{"log_count": len(lines)})

	return &LogsResult{
		Unit:      unit,
		Logs:      lines,
		Count:     len(lines),
		Timestamp: now(),
	}, nil
}

// State returns the parsed contents of <StateDir>/state_<area>.json
func (s *Service) State(ctx context.Context, area string) (json.RawMessage, error) {
	if !areaPattern.MatchString(area) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid state area", nil).
			WithDetail("area", area)
	}

	s.events.Log(EventUnit, observability.LevelInfo, "API_REQUEST",
		fmt.Sprintf("Received request to get state for area: %s", area), nil)

	path := filepath.Join(s.stateDir, "state_"+area+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.events.Log(EventUnit, observability.LevelError, "FILE_NOT_FOUND",
				fmt.Sprintf("State file not found for area: %s", area), nil)
			return nil, services.NewDomainError(services.ErrorTypeNotFound,
				fmt.Sprintf("state file not found for area: %s", area), nil).
				WithDetail("area", area)
		}
		return nil, services.WrapInternal("failed to read state file", err)
	}

	if !json.Valid(raw) {
		s.events.Log(EventUnit, observability.LevelError, "JSON_ERROR", "Invalid JSON in state file",
			map[string]interface{}{"file_path": path})
		return nil, services.WrapInternal(fmt.Sprintf("invalid JSON in state file %s", path), nil)
	}

	s.events.Log(EventUnit, observability.LevelInfo, "API_RESPONSE",
		fmt.Sprintf("Successfully retrieved state for area: %s", area),
		map[string]interface{}{"data_size": len(raw)})

	s.logger.Debug("state file served", zap.String("area", area), zap.Int("bytes", len(raw)))
	return json.RawMessage(raw), nil
}

// tail keeps the last n lines of a file in a ring buffer
func tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, n)
	total := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)
	for scanner.Scan() {
		ring[total%n] = strings.TrimSpace(scanner.Text())
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}

	if total <= n {
		return ring[:total], nil
	}
	lines := make([]string, 0, n)
	for i := total - n; i < total; i++ {
		lines = append(lines, ring[i%n])
	}
	return lines, nil
}

func now() string {
	return time.Now().UTC().Format(timestampLayout)
}
