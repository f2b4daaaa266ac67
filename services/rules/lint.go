package rules

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/mintresearch/agent-engine/models"
)

var sourceNamePattern = regexp.MustCompile(`^[a-z0-9_]+\.rules\.yaml$`)

// LintIssue is a problem found in one rule source
type LintIssue struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// String implements fmt.Stringer
func (i LintIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Source, i.Message)
}

// LintReport summarises a lint run over the rules directory
type LintReport struct {
	Sources int         `json:"sources"`
	Issues  []LintIssue `json:"issues"`
}

// OK reports whether no issues were found
func (r *LintReport) OK() bool {
	return len(r.Issues) == 0
}

// Lint checks every rule source in the loader's directory: file naming,
// unique categories, a parsable mapping document and a decodable own-category section.
func Lint(loader *Loader) (*LintReport, error) {
	sources, err := loader.ListSources()
	if err != nil {
		return nil, err
	}

	report := &LintReport{Sources: len(sources), Issues: []LintIssue{}}
	add := func(source, format string, args ...interface{}) {
		report.Issues = append(report.Issues, LintIssue{Source: source, Message: fmt.Sprintf(format, args...)})
	}

	seen := make(map[string]string, len(sources))
	for _, source := range sources {
		base := filepath.Base(source)
		if !sourceNamePattern.MatchString(base) {
			add(source, "file name must match %s", sourceNamePattern.String())
		}

		category := CategoryOf(source)
		if first, dup := seen[category]; dup {
			add(source, "category %q is already defined by %s", category, first)
		} else {
			seen[category] = source
		}

		doc, err := loader.Load(source)
		if err != nil {
			add(source, "%s", describe(err))
			continue
		}
		if doc == nil {
			add(source, "document is empty")
			continue
		}
		if !doc.HasSection() {
			add(source, "missing top-level %q key", category)
			continue
		}
		if err := lintSection(doc); err != nil {
			add(source, "%v", err)
		}
	}

	return report, nil
}

// lintSection decodes the category view the validator would use
func lintSection(doc *models.RuleDocument) error {
	var err error
	switch doc.Category {
	case models.CategoryStructure:
		_, err = doc.Structure()
	case models.CategoryNaming:
		var rules models.NamingRules
		rules, err = doc.Naming()
		if err == nil && rules.ComponentPattern != nil {
			if _, reErr := regexp.Compile(rules.ComponentPattern.Regex); reErr != nil {
				err = fmt.Errorf("invalid component_pattern regex: %w", reErr)
			}
		}
	case models.CategoryCapabilities:
		_, err = doc.Capabilities()
	case models.CategoryPermissions:
		_, err = doc.Permissions()
	case models.CategoryLogging:
		_, err = doc.Logging()
	default:
		_, err = doc.Content()
	}
	return err
}
