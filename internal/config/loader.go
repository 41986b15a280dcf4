package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout is applied to pipelines that don't declare their own.
const DefaultTimeout = 10 * time.Minute

// ParseError indicates a malformed pipeline definition. No steps run
// when parsing fails.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parsing pipeline: %v", e.Err)
	}
	return fmt.Sprintf("parsing pipeline %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse parses a pipeline definition from YAML bytes and applies defaults.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &ParseError{Err: err}
	}
	applyDefaults(&p)
	return &p, nil
}

// Load reads and parses a pipeline definition from the given YAML file path.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return p, nil
}

// applyDefaults fills in values the definition leaves unset.
func applyDefaults(p *Pipeline) {
	if p.Timeout == "" {
		p.Timeout = DefaultTimeout.String()
	}
}

// TimeoutDuration parses the pipeline's timeout string.
func (p *Pipeline) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", p.Timeout, err)
	}
	return d, nil
}
