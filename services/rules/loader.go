package rules

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/services"
	"go.uber.org/zap"
)

// SourceSuffix is the file name suffix of every rule source
const SourceSuffix = ".rules.yaml"

// Loader discovers and parses rule sources below a rules directory.
// Nothing is cached: every Load re-reads the file.
type Loader struct {
	dir    string
	logger *zap.Logger
}

// NewLoader creates a Loader for dir
func NewLoader(dir string, logger *zap.Logger) *Loader {
	return &Loader{
		dir:    dir,
		logger: logger,
	}
}

// Dir returns the rules directory
func (l *Loader) Dir() string {
	return l.dir
}

// ListSources returns every rule source in the rules directory in ascending
// path order. A missing directory yields an empty list.
func (l *Loader) ListSources() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*"+SourceSuffix))
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid rules directory", err).
			WithDetail("dir", l.dir)
	}

	sources := make([]string, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		sources = append(sources, match)
	}
	sort.Strings(sources)

	l.logger.Debug("listed rule sources",
		zap.String("dir", l.dir),
		zap.Int("count", len(sources)),
	)
	return sources, nil
}

// Load reads and parses one rule source. A structurally empty document
// returns (nil, nil).
func (l *Loader) Load(source string) (*models.RuleDocument, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.NewRuleNotFound(source)
		}
		return nil, services.NewRuleParseError(source, err)
	}

	doc, err := models.ParseRuleDocument(source, CategoryOf(source), data)
	if err != nil {
		return nil, services.NewRuleParseError(source, err)
	}
	if doc == nil {
		l.logger.Debug("skipping empty rule source", zap.String("source", source))
	}
	return doc, nil
}

// Resolve turns a caller supplied rule file name into a source path.
// Bare file names are looked up in the rules directory; paths must stay inside it.
func (l *Loader) Resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", services.NewDomainError(services.ErrorTypeValidation, "rule file name is empty", nil)
	}

	path := name
	if !filepath.IsAbs(name) && !strings.ContainsAny(name, `/\`) {
		path = filepath.Join(l.dir, name)
	}
	path = filepath.Clean(path)

	absDir, err := filepath.Abs(l.dir)
	if err != nil {
		return "", services.WrapInternal("failed to resolve rules directory", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", services.WrapInternal("failed to resolve rule file", err)
	}

	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", services.NewDomainError(services.ErrorTypeValidation,
			"rule file must be inside the rules directory", nil).
			WithDetail("rule_file", name)
	}
	return path, nil
}

// CategoryOf returns the rule category of a source: the base name up to its first dot
func CategoryOf(source string) string {
	base := filepath.Base(source)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// describe renders an error for a violation message without the error type prefix
func describe(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Err != nil {
			return domainErr.Message + ": " + domainErr.Err.Error()
		}
		return domainErr.Message
	}
	return err.Error()
}
