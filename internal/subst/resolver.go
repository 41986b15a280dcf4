// Package subst expands ${VAR} substitution tokens in pipeline definitions.
//
// Resolution is single-pass: substituted values are inserted verbatim and
// never re-expanded, so resolving an already-resolved string is a no-op.
package subst

import (
	"fmt"
	"strings"

	"github.com/conveyor-ci/conveyor/internal/config"
)

// UnresolvedVariableError is returned when a referenced substitution has
// neither a declared default nor a caller-supplied override.
type UnresolvedVariableError struct {
	Name string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("unresolved substitution variable %q", e.Name)
}

// Resolver holds the merged substitution mapping for one pipeline run.
// It is built once per run and read-only afterwards.
type Resolver struct {
	vars map[string]string
}

// NewResolver merges declared defaults with caller-supplied overrides
// (overrides win). Values containing '$' are rejected outright: a value
// holding a ${...} token, a $$ escape, or even a bare '$' that splices
// into a token next to adjacent template text would make resolver output
// expandable again, breaking single-pass idempotent resolution.
func NewResolver(defaults, overrides map[string]string) (*Resolver, error) {
	vars := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		vars[k] = v
	}
	for k, v := range overrides {
		vars[k] = v
	}
	for k, v := range vars {
		if strings.ContainsRune(v, '$') {
			return nil, fmt.Errorf("substitution %s: value %q contains '$'", k, v)
		}
	}
	return &Resolver{vars: vars}, nil
}

// Lookup returns the value bound to name.
func (r *Resolver) Lookup(name string) (string, bool) {
	v, ok := r.vars[name]
	return v, ok
}

// Resolve expands every ${NAME} token in s. "$$" produces a literal "$".
// A "$" not forming either token is passed through unchanged.
func (r *Resolver) Resolve(s string) (string, error) {
	i := indexToken(s)
	if i < 0 {
		return s, nil
	}

	var out []byte
	for {
		out = append(out, s[:i]...)
		s = s[i:]
		if s[1] == '$' { // "$$"
			out = append(out, '$')
			s = s[2:]
		} else { // "${NAME}"
			end := closingBrace(s)
			name := s[2:end]
			v, ok := r.vars[name]
			if !ok {
				return "", &UnresolvedVariableError{Name: name}
			}
			out = append(out, v...)
			s = s[end+1:]
		}
		i = indexToken(s)
		if i < 0 {
			return string(out) + s, nil
		}
	}
}

// ResolveAll resolves each string in ss, returning a new slice.
func (r *Resolver) ResolveAll(ss []string) ([]string, error) {
	if ss == nil {
		return nil, nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		v, err := r.Resolve(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ResolvePipeline returns a copy of p with every substitutable string field
// expanded. The input pipeline is left untouched. Step IDs and waitFor
// references are identifiers, not templates, and are not resolved.
func (r *Resolver) ResolvePipeline(p *config.Pipeline) (*config.Pipeline, error) {
	out := &config.Pipeline{
		Timeout:       p.Timeout,
		Substitutions: p.Substitutions,
		Steps:         make([]config.Step, len(p.Steps)),
	}

	var err error
	for i, s := range p.Steps {
		rs := s
		if rs.Name, err = r.Resolve(s.Name); err != nil {
			return nil, err
		}
		if rs.Args, err = r.ResolveAll(s.Args); err != nil {
			return nil, err
		}
		if rs.Env, err = r.ResolveAll(s.Env); err != nil {
			return nil, err
		}
		if rs.Dir, err = r.Resolve(s.Dir); err != nil {
			return nil, err
		}
		if rs.Entrypoint, err = r.Resolve(s.Entrypoint); err != nil {
			return nil, err
		}
		out.Steps[i] = rs
	}

	if out.Images, err = r.ResolveAll(p.Images); err != nil {
		return nil, err
	}
	return out, nil
}

// indexToken returns the index of the first "$$" or "${NAME}" token in s,
// or -1 if s contains neither.
func indexToken(s string) int {
	for i := 0; i < len(s)-1; i++ {
		if s[i] != '$' {
			continue
		}
		if s[i+1] == '$' {
			return i
		}
		if s[i+1] == '{' && closingBrace(s[i:]) > 0 {
			return i
		}
	}
	return -1
}

// closingBrace returns the index of the '}' terminating the "${NAME}" token
// at the start of s, or -1 if the token is malformed. NAME must be a
// non-empty run of letters, digits, or underscores.
func closingBrace(s string) int {
	for i := 2; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '}':
			if i == 2 {
				return -1
			}
			return i
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			// still inside the name
		default:
			return -1
		}
	}
	return -1
}
