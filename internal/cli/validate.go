package cli

import (
	"fmt"

	"github.com/conveyor-ci/conveyor/internal/subst"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline.yaml>...",
	Short: "Parse and validate pipeline definitions without running them",
	Long: `Validate parses each definition, checks it for structural errors
(duplicate step IDs, bad timeout, bad waitFor references), and verifies
that every ${VAR} reference resolves against the declared defaults plus
any --substitutions overrides.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, _ := cmd.Flags().GetStringSlice("substitutions")
		overrides, err := parseSubstitutions(subs)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			if err := validateOne(path, overrides); err != nil {
				fmt.Fprintf(w, "%s: INVALID\n  %v\n", path, err)
				failed++
				continue
			}
			fmt.Fprintf(w, "%s: OK\n", path)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d definition(s) invalid", failed, len(args))
		}
		return nil
	},
}

// validateOne runs the full pre-flight on a single definition: parse,
// structural validation, and substitution resolution.
func validateOne(path string, overrides map[string]string) error {
	p, err := loadValid(path)
	if err != nil {
		return err
	}
	resolver, err := subst.NewResolver(p.Substitutions, overrides)
	if err != nil {
		return err
	}
	if _, err := resolver.ResolvePipeline(p); err != nil {
		return err
	}
	return nil
}

func init() {
	validateCmd.Flags().StringSlice("substitutions", nil, "Substitution overrides as KEY=VALUE pairs")
}
