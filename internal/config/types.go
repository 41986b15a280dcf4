package config

// Pipeline is the top-level pipeline definition parsed from YAML.
type Pipeline struct {
	Steps         []Step            `yaml:"steps"`
	Substitutions map[string]string `yaml:"substitutions"`
	Timeout       string            `yaml:"timeout"`
	Images        []string          `yaml:"images"`
}

// Step describes one unit of work: a container image invoked with an
// argument list. Name is the image reference; all string fields may
// contain ${VAR} substitution tokens.
type Step struct {
	Name         string   `yaml:"name"`
	Args         []string `yaml:"args"`
	Env          []string `yaml:"env"`
	Dir          string   `yaml:"dir"`
	ID           string   `yaml:"id"`
	Entrypoint   string   `yaml:"entrypoint"`
	WaitFor      []string `yaml:"waitFor"`
	AllowFailure bool     `yaml:"allowFailure"`
}
