package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/conveyor-ci/conveyor/internal/backend"
	"github.com/conveyor-ci/conveyor/internal/config"
	"github.com/conveyor-ci/conveyor/internal/db"
	"github.com/conveyor-ci/conveyor/internal/engine"
	"github.com/conveyor-ci/conveyor/internal/history"
	"github.com/conveyor-ci/conveyor/internal/subst"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml> [more-pipelines...]",
	Short: "Execute one or more pipeline definitions",
	Long: `Execute pipeline definitions. Steps within a pipeline always run
strictly in declared order; with --parallel N, up to N independent
pipeline files run at the same time, each with its own substitution
context and result.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, _ := cmd.Flags().GetStringSlice("substitutions")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		backendName, _ := cmd.Flags().GetString("backend")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		parallel, _ := cmd.Flags().GetInt("parallel")
		dbURL, _ := cmd.Flags().GetString("db-url")

		overrides, err := parseSubstitutions(subs)
		if err != nil {
			return err
		}

		be, err := selectBackend(backendName)
		if err != nil {
			return err
		}

		if dryRun {
			for _, path := range args {
				if err := dryRunPipeline(cmd, path, overrides); err != nil {
					return err
				}
			}
			return nil
		}

		store, err := history.DefaultStore()
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}

		ctx := cmd.Context()
		var recorder *db.DB
		if dbURL != "" {
			recorder, err = db.Open(ctx, dbURL)
			if err != nil {
				return err
			}
			defer recorder.Close(ctx)
			if err := recorder.Migrate(ctx); err != nil {
				return err
			}
		}

		if parallel < 1 {
			parallel = 1
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallel)
		for _, path := range args {
			path := path
			g.Go(func() error {
				return runOne(gctx, cmd, path, overrides, timeout, be, store, recorder)
			})
		}
		return g.Wait()
	},
}

// runOne loads, executes, and persists a single pipeline. Each invocation
// owns an independent engine run: no substitution context or result is
// shared across pipelines.
func runOne(
	ctx context.Context,
	cmd *cobra.Command,
	path string,
	overrides map[string]string,
	timeout time.Duration,
	be backend.Backend,
	store *history.Store,
	recorder *db.DB,
) error {
	p, err := loadValid(path)
	if err != nil {
		return err
	}

	eng := engine.New(be)
	eng.SetProgress(cmd.ErrOrStderr())

	res, runErr := eng.Run(ctx, p, engine.RunOpts{Overrides: overrides, Timeout: timeout})
	if res == nil {
		return runErr // resolution or setup failure, nothing ran
	}

	run := &history.Run{
		ID:       history.NewRunID(),
		Pipeline: path,
		Status:   res.Status(),
		Result:   res,
	}
	if err := store.Save(run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if recorder != nil {
		if err := recorder.RecordRun(ctx, run); err != nil {
			return fmt.Errorf("record run in database: %w", err)
		}
	}

	printResult(cmd, run)

	var te *engine.TimeoutError
	if errors.As(runErr, &te) {
		return fmt.Errorf("%s: %w", path, runErr)
	}
	if runErr != nil {
		return runErr
	}
	if !res.Success {
		return fmt.Errorf("%s: pipeline failed", path)
	}
	return nil
}

// dryRunPipeline resolves a pipeline and prints the resolved steps and
// images without executing anything.
func dryRunPipeline(cmd *cobra.Command, path string, overrides map[string]string) error {
	p, err := loadValid(path)
	if err != nil {
		return err
	}
	resolver, err := subst.NewResolver(p.Substitutions, overrides)
	if err != nil {
		return err
	}
	resolved, err := resolver.ResolvePipeline(p)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (%d steps, timeout %s)\n", path, len(resolved.Steps), p.Timeout)
	for i, s := range resolved.Steps {
		flags := ""
		if s.AllowFailure {
			flags = " [best-effort]"
		}
		fmt.Fprintf(w, "  %2d. %s %s%s\n", i+1, s.Name, strings.Join(s.Args, " "), flags)
	}
	for _, img := range resolved.Images {
		fmt.Fprintf(w, "  image: %s\n", img)
	}
	return nil
}

// loadValid loads a pipeline definition and rejects it on validation errors.
func loadValid(path string) (*config.Pipeline, error) {
	p, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(p); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("%s: invalid pipeline:\n  %s", path, strings.Join(msgs, "\n  "))
	}
	return p, nil
}

// printResult writes a per-step summary table and the run's final status.
func printResult(cmd *cobra.Command, run *history.Run) {
	w := cmd.OutOrStdout()
	res := run.Result

	fmt.Fprintf(w, "\nRun %s: %s\n", run.ID, run.Pipeline)
	for i, sr := range res.Steps {
		label := sr.ID
		if label == "" {
			label = sr.Image
		}
		switch sr.Status {
		case engine.StatusSkipped:
			fmt.Fprintf(w, "  %2d. %-40s %s\n", i+1, label, sr.Status)
		case engine.StatusError:
			fmt.Fprintf(w, "  %2d. %-40s %s (%s)\n", i+1, label, sr.Status, sr.Error)
		default:
			fmt.Fprintf(w, "  %2d. %-40s %s (exit %d, %s)\n",
				i+1, label, sr.Status, sr.ExitCode, sr.FinishedAt.Sub(sr.StartedAt).Round(time.Millisecond))
		}
	}
	for _, img := range res.Images {
		fmt.Fprintf(w, "  image: %s\n", img)
	}
	fmt.Fprintf(w, "Status: %s (%s)\n", run.Status, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
}

// parseSubstitutions parses KEY=VALUE pairs from --substitutions.
func parseSubstitutions(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid substitution %q (want KEY=VALUE)", pair)
		}
		out[key] = val
	}
	return out, nil
}

// selectBackend maps a --backend flag value to an implementation.
func selectBackend(name string) (backend.Backend, error) {
	switch name {
	case "", "docker":
		return &backend.DockerBackend{}, nil
	case "local":
		return &backend.LocalBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want docker or local)", name)
	}
}

func init() {
	runCmd.Flags().StringSlice("substitutions", nil, "Substitution overrides as KEY=VALUE pairs")
	runCmd.Flags().Duration("timeout", 0, "Override the pipeline's declared timeout")
	runCmd.Flags().String("backend", "docker", "Execution backend (docker, local)")
	runCmd.Flags().Bool("dry-run", false, "Resolve and print the pipeline without executing")
	runCmd.Flags().Int("parallel", 1, "Max pipeline files to run concurrently")
	runCmd.Flags().String("db-url", os.Getenv("CONVEYOR_DB_URL"), "Postgres URL for recording run results")
}
