package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationError represents a single validation issue with a pipeline definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// userKeyPattern matches user-defined substitution keys: an underscore
// followed by uppercase letters, digits, or underscores.
var userKeyPattern = regexp.MustCompile(`^_[A-Z0-9_]+$`)

// stepIDPattern restricts step IDs to a filename-safe alphabet. IDs end up
// in waitFor references and in per-step log file names, so path separators
// and leading dots are not allowed.
var stepIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// builtinKeys are substitution names the runner provides at execution time.
// They may not be declared in the definition's substitutions map.
var builtinKeys = map[string]bool{
	"PROJECT_ID":  true,
	"BUILD_ID":    true,
	"COMMIT_SHA":  true,
	"SHORT_SHA":   true,
	"BRANCH_NAME": true,
	"TAG_NAME":    true,
	"REPO_NAME":   true,
}

// BuiltinKey reports whether name is a runner-provided substitution.
func BuiltinKey(name string) bool {
	return builtinKeys[name]
}

// Validate checks a Pipeline for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(p *Pipeline) []ValidationError {
	var errs []ValidationError

	if len(p.Steps) == 0 {
		errs = append(errs, ValidationError{Field: "steps", Message: "at least one step is required"})
	}

	if p.Timeout != "" {
		if _, err := time.ParseDuration(p.Timeout); err != nil {
			errs = append(errs, ValidationError{
				Field:   "timeout",
				Message: fmt.Sprintf("invalid duration %q", p.Timeout),
			})
		}
	}

	// Step identifiers, when present, must be unique within the pipeline.
	stepIDs := make(map[string]bool)
	for i, s := range p.Steps {
		prefix := fmt.Sprintf("steps[%d]", i)
		if s.Name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
		}
		if s.ID == "" {
			continue
		}
		if !stepIDPattern.MatchString(s.ID) {
			errs = append(errs, ValidationError{
				Field:   prefix + ".id",
				Message: fmt.Sprintf("step ID %q must match [A-Za-z0-9][A-Za-z0-9_.-]*", s.ID),
			})
		}
		if stepIDs[s.ID] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".id",
				Message: fmt.Sprintf("duplicate step ID %q", s.ID),
			})
		}
		stepIDs[s.ID] = true
	}

	// waitFor entries must be "-" or reference an earlier step's ID.
	// Execution is strictly sequential, so a later reference can never
	// be satisfied.
	seen := make(map[string]bool)
	for i, s := range p.Steps {
		for _, dep := range s.WaitFor {
			if dep == "-" {
				continue
			}
			if !seen[dep] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("steps[%d].waitFor", i),
					Message: fmt.Sprintf("references unknown or later step %q", dep),
				})
			}
		}
		if s.ID != "" {
			seen[s.ID] = true
		}
	}

	// Declared substitution keys must be user-defined names; builtins are
	// injected by the runner. Values may not contain '$' at all: a dollar
	// in a value could form a ${...} token or $$ escape once inserted,
	// which would break single-pass, idempotent resolution. The resolver
	// enforces the same rule on overrides at run time.
	for key, val := range p.Substitutions {
		if builtinKeys[key] {
			errs = append(errs, ValidationError{
				Field:   "substitutions." + key,
				Message: "shadows a builtin substitution",
			})
			continue
		}
		if !userKeyPattern.MatchString(key) {
			errs = append(errs, ValidationError{
				Field:   "substitutions." + key,
				Message: "user-defined keys must match _[A-Z0-9_]+",
			})
		}
		if strings.ContainsRune(val, '$') {
			errs = append(errs, ValidationError{
				Field:   "substitutions." + key,
				Message: "values may not contain '$'",
			})
		}
	}

	return errs
}
