package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mintresearch/agent-engine/models"
	"gopkg.in/yaml.v3"
)

// loadPolicyFile reads a YAML (or JSON) policy document. An empty path or an
// empty document yields an empty policy.
func loadPolicyFile(path string) (models.Policy, error) {
	if path == "" {
		return models.Policy{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	policy := models.Policy{}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return policy, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
