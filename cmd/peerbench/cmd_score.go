package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anushabukke/peerBench-sub002/internal/orchestration"
	"github.com/anushabukke/peerBench-sub002/internal/providers"
	"github.com/anushabukke/peerBench-sub002/internal/scorers"
	"github.com/anushabukke/peerBench-sub002/internal/utils"
)

type scoreOptions struct {
	scorer    string
	mode      string
	against   string
	criteria  string
	params    map[string]string
	tags      []string
	outputDir string
	workers   int
	noSign    bool
	verbose   bool
}

func newScoreCommand(a *app) *cobra.Command {
	o := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score <responses.json|dir|glob>...",
		Short: "Score response files",
		Long: `Score every response in one or more response files.

Each response file produces one score file named
<response file>.<scorer>.<timestamp>.scores.json. Without --scorer the scorer is
picked from the first response: multiple-choice for prompts with lettered
options, exact-match for prompts with a reference answer, and llm-judge when a
judge model is configured.

Pairwise judging compares each response with the response to the same prompt
in the --against file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, a, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.scorer, "scorer", "s", "", "Scorer to use (default: detected per file)")
	f.StringVar(&o.mode, "mode", "", "llm-judge mode: pointwise or pairwise")
	f.StringVar(&o.against, "against", "", "Response file to compare against in pairwise mode")
	f.StringVar(&o.criteria, "criteria", "", "YAML file of llm-judge criteria and instructions")
	f.StringToStringVar(&o.params, "param", nil, "Scorer parameter (key=value, repeatable)")
	f.StringSliceVar(&o.tags, "tags", nil, "Tags appended to output file names")
	f.StringVarP(&o.outputDir, "output-dir", "o", "", "Directory for score files (default from config)")
	f.IntVar(&o.workers, "workers", 0, "Files scored concurrently (default from config)")
	f.BoolVar(&o.noSign, "no-sign", false, "Do not sign output files even when an operator key is set")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Print every score as it is computed")

	return cmd
}

func runScore(cmd *cobra.Command, a *app, o *scoreOptions, args []string) error {
	ctx := cmd.Context()
	cfg := a.cfg

	files, err := utils.ExpandFiles(args, ".responses")
	if err != nil {
		return err
	}

	params, err := o.scorerParams()
	if err != nil {
		return err
	}

	judge, closeJudge, err := a.buildJudge(ctx, o.scorer)
	if err != nil {
		return err
	}
	defer closeJudge()

	var registry *scorers.Registry
	if judge != nil {
		registry = scorers.DefaultRegistry(judge, cfg.Judge.Model, cfg.Judge.Temperature)
	} else {
		registry = scorers.DefaultRegistry(nil, "", nil)
	}

	s, err := signer(o.noSign)
	if err != nil {
		return err
	}
	sinks, closeSinks, err := a.buildSinks()
	if err != nil {
		return err
	}
	defer closeSinks()

	runner := orchestration.NewScoringRunner(registry,
		orchestration.WithOutputDir(cmp.Or(o.outputDir, cfg.Paths.Results)),
		orchestration.WithSigner(s),
		orchestration.WithSinks(sinks...),
		orchestration.WithMetrics(a.metrics),
	)
	printer := &progressPrinter{w: cmd.OutOrStdout(), verbose: o.verbose}
	runner.OnProgress(printer.listen)

	results, runErr := runner.ScoreFiles(ctx, files, orchestration.ScoreConfig{
		ScorerID: o.scorer,
		Params:   params,
		Against:  o.against,
		Tags:     o.tags,
		Workers:  cmp.Or(o.workers, cfg.Defaults.Workers),
	})

	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "%s: %d score(s) by %s, %d skipped\n", r.Path, len(r.Items)-r.Failed(), r.Scorer, r.Failed())
	}
	return runError(cmd.ErrOrStderr(), runErr)
}

// scorerParams merges the criteria file, --param values and --mode, in that
// order of increasing precedence.
func (o *scoreOptions) scorerParams() (map[string]any, error) {
	params := map[string]any{}
	if o.criteria != "" {
		data, err := os.ReadFile(o.criteria)
		if err != nil {
			return nil, fmt.Errorf("reading criteria: %w", err)
		}
		var fromFile map[string]any
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", o.criteria, err)
		}
		maps.Copy(params, fromFile)
	}
	for k, v := range o.params {
		params[k] = v
	}
	if o.mode != "" {
		params["mode"] = o.mode
	}
	if o.against != "" && params["mode"] == nil {
		params["mode"] = scorers.ModePairwise
	}
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

// buildJudge creates the configured judge provider. When the llm-judge scorer
// was not asked for explicitly, a judge that cannot be built only disables
// judging.
func (a *app) buildJudge(ctx context.Context, scorerID string) (*providers.Provider, func(), error) {
	noop := func() {}
	if scorerID != "" && scorerID != scorers.LLMJudgeID {
		return nil, noop, nil
	}
	judge, err := providers.DefaultRegistry().Build(ctx, a.cfg.Judge.Provider, a.cfg, a.metrics)
	if err != nil {
		if scorerID == scorers.LLMJudgeID {
			return nil, noop, fmt.Errorf("judge: %w", err)
		}
		slog.Debug("No judge available, llm-judge is disabled", "provider", a.cfg.Judge.Provider, "error", err)
		return nil, noop, nil
	}
	return judge, func() {
		if err := judge.Close(); err != nil {
			slog.Warn("Closing judge failed", "error", err)
		}
	}, nil
}
