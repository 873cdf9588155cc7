package main

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/anushabukke/peerBench-sub002/internal/cache"
	"github.com/anushabukke/peerBench-sub002/internal/models"
	"github.com/anushabukke/peerBench-sub002/internal/orchestration"
	"github.com/anushabukke/peerBench-sub002/internal/taskfile"
	"github.com/anushabukke/peerBench-sub002/internal/utils"
)

type promptOptions struct {
	providers   []string
	models      []string
	system      string
	vars        map[string]string
	maxPrompts  int
	filters     []string
	temperature float64
	maxTokens   int
	tags        []string
	outputDir   string
	workers     int
	useCache    bool
	runID       string
	noSign      bool
	verbose     bool
}

func newPromptCommand(a *app) *cobra.Command {
	o := &promptOptions{}
	cmd := &cobra.Command{
		Use:   "prompt <task.json|dir|glob>...",
		Short: "Forward task prompts to models and record the responses",
		Long: `Forward the prompts of one or more task files to every selected model.

Each task and model pair produces one response file in the output directory,
named <task>.<provider>.<owner>.<model>.<timestamp>.responses.json, plus a .cid
sidecar holding its content identifier and signature. Prompts that fail are
logged and skipped; the rest of the file is still written.

Models are paired with every --provider. Write provider=model to bind a model
to one provider.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd, a, o, args)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&o.providers, "provider", "p", nil, "Provider to forward to (repeatable)")
	f.StringSliceVarP(&o.models, "model", "m", nil, "Model to forward to (repeatable)")
	f.StringVar(&o.system, "system", "", "System prompt template overriding the per-type default")
	f.StringToStringVar(&o.vars, "var", nil, "Template variable for the system prompt (key=value, repeatable)")
	f.IntVar(&o.maxPrompts, "max-prompts", 0, "Forward at most this many prompts per task (0 = all)")
	f.StringSliceVar(&o.filters, "filter", nil, "Only forward prompts whose DID or type matches a glob (repeatable)")
	f.Float64Var(&o.temperature, "temperature", 0, "Sampling temperature (default from config)")
	f.IntVar(&o.maxTokens, "max-tokens", 0, "Maximum tokens per response (default from config)")
	f.StringSliceVar(&o.tags, "tags", nil, "Tags appended to output file names")
	f.StringVarP(&o.outputDir, "output-dir", "o", "", "Directory for response files (default from config)")
	f.IntVar(&o.workers, "workers", 0, "Task and model pairs forwarded concurrently (default from config)")
	f.BoolVar(&o.useCache, "cache", false, "Serve repeated requests from the response cache")
	f.StringVar(&o.runID, "run-id", "", "Run identifier recorded on every response (default: generated)")
	f.BoolVar(&o.noSign, "no-sign", false, "Do not sign output files even when an operator key is set")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Print every prompt as it completes")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runPrompt(cmd *cobra.Command, a *app, o *promptOptions, args []string) error {
	ctx := cmd.Context()
	cfg := a.cfg

	files, err := utils.ExpandFiles(args, "")
	if err != nil {
		return err
	}

	provs, closeProviders, err := a.buildProviders(ctx, o.providers)
	if err != nil {
		return err
	}
	defer closeProviders()

	targets, err := parseTargets(o.providers, provs, o.models)
	if err != nil {
		return err
	}

	// A task file that does not parse fails its units; the other files run.
	var tasks []*models.Task
	var readFailures []*orchestration.UnitError
	for _, file := range files {
		_, task, err := taskfile.ReadFromFile(file)
		if err != nil {
			slog.Error("Task file rejected", "file", file, "error", err)
			for _, t := range targets {
				readFailures = append(readFailures, &orchestration.UnitError{Unit: file + " -> " + t.String(), Err: err})
			}
			continue
		}
		tasks = append(tasks, task)
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

	opts := []orchestration.Option{
		orchestration.WithOutputDir(cmp.Or(o.outputDir, cfg.Paths.Results)),
		orchestration.WithSigner(s),
		orchestration.WithSinks(sinks...),
		orchestration.WithMetrics(a.metrics),
	}
	if o.runID != "" {
		opts = append(opts, orchestration.WithRunID(o.runID))
	}
	if o.useCache || enabled(cfg.Cache.Enabled) {
		opts = append(opts, orchestration.WithCache(cache.New(cfg.Cache.Dir)))
	}

	fwd := orchestration.NewForwarder(opts...)
	printer := &progressPrinter{w: cmd.OutOrStdout(), verbose: o.verbose}
	fwd.OnProgress(printer.listen)

	fc := orchestration.ForwardConfig{
		SystemPrompt:  o.system,
		Vars:          o.vars,
		MaxPrompts:    o.maxPrompts,
		PromptFilters: o.filters,
		Temperature:   cfg.Defaults.Temperature,
		MaxTokens:     cfg.Defaults.MaxTokens,
		Tags:          o.tags,
		Workers:       cfg.Defaults.Workers,
	}
	if cmd.Flags().Changed("temperature") {
		fc.Temperature = &o.temperature
	}
	if o.maxTokens > 0 {
		fc.MaxTokens = o.maxTokens
	}
	if o.workers > 0 {
		fc.Workers = o.workers
	}

	slog.Debug("Starting forwarding run", "run", fwd.RunID(), "tasks", len(tasks), "targets", len(targets))
	results, runErr := fwd.ForwardAll(ctx, tasks, targets, fc)

	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "%s: %d response(s), %d failed\n", r.Path, len(r.Items)-r.Failed(), r.Failed())
	}
	return runError(cmd.ErrOrStderr(), mergeFailures(len(tasks)*len(targets), runErr, readFailures))
}

// mergeFailures folds failures found before a batch started into the batch's
// own error. total counts the units the batch ran.
func mergeFailures(total int, runErr error, early []*orchestration.UnitError) error {
	if len(early) == 0 {
		return runErr
	}
	merged := &orchestration.BatchError{Total: total + len(early), Failures: early}
	if runErr == nil {
		return merged
	}
	var be *orchestration.BatchError
	if !errors.As(runErr, &be) {
		return runErr
	}
	merged.Failures = append(merged.Failures, be.Failures...)
	return merged
}
