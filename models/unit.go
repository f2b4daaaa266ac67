package models

// Unit is one registered runtime unit from the unit registry file
type Unit struct {
	ID        string `json:"id" yaml:"id"`
	Type      string `json:"type" yaml:"type"`
	Path      string `json:"path" yaml:"path"`
	EntryFile string `json:"entry_file" yaml:"entry_file"`
	Port      *int   `json:"port,omitempty" yaml:"port"`
}

// Registry is the decoded unit registry file
type Registry struct {
	Units []Unit `yaml:"units"`
}
