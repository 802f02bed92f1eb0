package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blockspacer/spmdfy/internal/ctxlog"
	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/diag"
	"github.com/blockspacer/spmdfy/internal/diagfmt"
	"github.com/blockspacer/spmdfy/internal/observ"
	"github.com/blockspacer/spmdfy/internal/pipeline"
	"github.com/blockspacer/spmdfy/internal/project"
	"github.com/blockspacer/spmdfy/internal/typemap"
	"github.com/blockspacer/spmdfy/internal/ui"
)

const outputExt = ".ispc"

var translateCmd = &cobra.Command{
	Use:   "translate [flags] <file.cu|file.json>...",
	Short: "Translate CUDA sources into ISPC",
	Long: `Translate CUDA sources into ISPC. Sources are parsed by running clang;
files ending in .json are read as pre-dumped clang JSON ASTs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranslate,
}

func init() {
	addTranslateFlags(translateCmd)
	translateCmd.Flags().StringP("out", "o", "", "output file, or directory when several inputs are given")
	translateCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	translateCmd.Flags().Bool("no-cache", false, "do not read or write the translation cache")
	translateCmd.Flags().String("format", "pretty", "diagnostics format (pretty|short|json)")
	translateCmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
	translateCmd.Flags().Bool("warnings-as-errors", false, "fail when any warning is reported")
}

// addTranslateFlags registers the flags shared by translate and chain.
func addTranslateFlags(cmd *cobra.Command) {
	cmd.Flags().String("ast", "", "pre-dumped clang JSON AST of the single input")
	cmd.Flags().Int("jobs", 0, "max parallel files and kernels (0=auto)")
	cmd.Flags().String("clang", "", "clang executable")
	cmd.Flags().StringArray("clang-arg", nil, "clang argument replacing the defaults (repeatable)")
	cmd.Flags().StringArrayP("include", "I", nil, "include directory passed to clang (repeatable)")
	cmd.Flags().StringArray("barrier", nil, "barrier function name (repeatable)")
	cmd.Flags().String("null-token", "", "spelling of null pointer constants")
	cmd.Flags().String("shared-size", "", "name of the dynamic shared memory size parameter")
	cmd.Flags().String("tables", "", "TOML file with [types] and [atomics] entries applied over the manifest")
}

// translateOptions are the flag values; zero values defer to the manifest.
type translateOptions struct {
	ast        string
	jobs       int
	clang      string
	clangArgs  []string
	include    []string
	barriers   []string
	nullToken  string
	sharedSize string
	tables     string

	out              string
	ui               string
	noCache          bool
	format           string
	withNotes        bool
	warningsAsErrors bool
}

func readTranslateOptions(cmd *cobra.Command) (translateOptions, error) {
	var opts translateOptions
	var err error
	flags := cmd.Flags()
	if opts.ast, err = flags.GetString("ast"); err != nil {
		return opts, fmt.Errorf("failed to get ast flag: %w", err)
	}
	if opts.jobs, err = flags.GetInt("jobs"); err != nil {
		return opts, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if opts.clang, err = flags.GetString("clang"); err != nil {
		return opts, fmt.Errorf("failed to get clang flag: %w", err)
	}
	if opts.clangArgs, err = flags.GetStringArray("clang-arg"); err != nil {
		return opts, fmt.Errorf("failed to get clang-arg flag: %w", err)
	}
	if opts.include, err = flags.GetStringArray("include"); err != nil {
		return opts, fmt.Errorf("failed to get include flag: %w", err)
	}
	if opts.barriers, err = flags.GetStringArray("barrier"); err != nil {
		return opts, fmt.Errorf("failed to get barrier flag: %w", err)
	}
	if opts.nullToken, err = flags.GetString("null-token"); err != nil {
		return opts, fmt.Errorf("failed to get null-token flag: %w", err)
	}
	if opts.sharedSize, err = flags.GetString("shared-size"); err != nil {
		return opts, fmt.Errorf("failed to get shared-size flag: %w", err)
	}
	if opts.tables, err = flags.GetString("tables"); err != nil {
		return opts, fmt.Errorf("failed to get tables flag: %w", err)
	}
	if flags.Lookup("out") == nil {
		return opts, nil
	}
	if opts.out, err = flags.GetString("out"); err != nil {
		return opts, fmt.Errorf("failed to get out flag: %w", err)
	}
	if opts.ui, err = flags.GetString("ui"); err != nil {
		return opts, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if opts.noCache, err = flags.GetBool("no-cache"); err != nil {
		return opts, fmt.Errorf("failed to get no-cache flag: %w", err)
	}
	if opts.format, err = flags.GetString("format"); err != nil {
		return opts, fmt.Errorf("failed to get format flag: %w", err)
	}
	if opts.withNotes, err = flags.GetBool("with-notes"); err != nil {
		return opts, fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	if opts.warningsAsErrors, err = flags.GetBool("warnings-as-errors"); err != nil {
		return opts, fmt.Errorf("failed to get warnings-as-errors flag: %w", err)
	}
	return opts, nil
}

// buildRequest merges the manifest (may be nil) with the flags. Flags win.
func buildRequest(opts translateOptions, m *project.Manifest, args []string) (pipeline.Request, error) {
	var cfg project.Config
	if m != nil {
		cfg = m.Config
	}
	tc := cfg.Translate

	req := pipeline.Request{
		Tables:     typemap.Default().With(cfg.Overrides()),
		Barriers:   pick(opts.barriers, tc.Barriers),
		NullToken:  pickString(opts.nullToken, tc.NullToken),
		SharedSize: pickString(opts.sharedSize, tc.SharedSize),
		Jobs:       tc.Jobs,
		Clang: cuast.ClangOptions{
			Command: pickString(opts.clang, tc.Clang),
			Args:    pick(opts.clangArgs, tc.ClangArgs),
		},
	}
	if opts.jobs < 0 {
		return req, fmt.Errorf("invalid --jobs value %d", opts.jobs)
	}
	if opts.tables != "" {
		// #nosec G304 -- path is provided by the user
		data, err := os.ReadFile(opts.tables)
		if err != nil {
			return req, fmt.Errorf("tables: %w", err)
		}
		extra, err := typemap.ParseOverrides(data)
		if err != nil {
			return req, fmt.Errorf("%s: %w", opts.tables, err)
		}
		req.Tables = req.Tables.With(extra)
	}
	if opts.jobs > 0 {
		req.Jobs = opts.jobs
	}
	for _, dir := range append(append([]string(nil), tc.Include...), opts.include...) {
		req.Clang.Extra = append(req.Clang.Extra, "-I"+dir)
	}

	if opts.ast != "" {
		if len(args) != 1 {
			return req, fmt.Errorf("--ast needs exactly one input, got %d", len(args))
		}
		req.Inputs = []pipeline.Input{{Path: args[0], AST: opts.ast}}
		return req, nil
	}
	for _, arg := range args {
		req.Inputs = append(req.Inputs, pipeline.Input{Path: arg})
	}
	return req, nil
}

func pick(flag, manifest []string) []string {
	if len(flag) > 0 {
		return flag
	}
	return manifest
}

func pickString(flag, manifest string) string {
	if flag != "" {
		return flag
	}
	return manifest
}

// outputPaths returns one destination per input; "" means stdout. A single
// input goes to stdout unless out names a file or an existing directory.
// Several inputs go next to their sources, or into the directory out.
func outputPaths(inputs []pipeline.Input, out string) ([]string, error) {
	paths := make([]string, len(inputs))
	if len(inputs) == 1 {
		if out == "" {
			return paths, nil
		}
		if info, err := os.Stat(out); err == nil && info.IsDir() {
			paths[0] = filepath.Join(out, outputName(inputs[0].Path))
		} else {
			paths[0] = out
		}
		return paths, nil
	}
	seen := make(map[string]string, len(inputs))
	for i, in := range inputs {
		if out == "" {
			paths[i] = filepath.Join(filepath.Dir(in.Path), outputName(in.Path))
		} else {
			paths[i] = filepath.Join(out, outputName(in.Path))
		}
		if prev, ok := seen[paths[i]]; ok {
			return nil, fmt.Errorf("%s and %s both translate to %s", prev, in.Path, paths[i])
		}
		seen[paths[i]] = in.Path
	}
	return paths, nil
}

// outputName maps kernel.cu and kernel.cu.json to kernel.ispc.
func outputName(inputPath string) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, ".json")
	return strings.TrimSuffix(base, filepath.Ext(base)) + outputExt
}

func loadManifest() (*project.Manifest, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, ok, err := project.LoadManifest(wd)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return m, nil
}

func runTranslate(cmd *cobra.Command, args []string) error {
	ctx, cleanup, err := setupRun(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	log := ctxlog.FromContext(ctx)

	opts, err := readTranslateOptions(cmd)
	if err != nil {
		return err
	}
	mode, err := readUIMode(opts.ui)
	if err != nil {
		return err
	}
	switch opts.format {
	case "pretty", "short", "json":
	default:
		return fmt.Errorf("unsupported format %q (must be pretty, short or json)", opts.format)
	}
	root := cmd.Root().PersistentFlags()
	quiet, err := root.GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := root.GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	maxDiagnostics, err := root.GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	color, err := useColor(cmd, os.Stderr)
	if err != nil {
		return err
	}

	manifest, err := loadManifest()
	if err != nil {
		return err
	}
	if manifest != nil {
		log.Debug("manifest loaded", zap.String("path", manifest.Path))
	}
	req, err := buildRequest(opts, manifest, args)
	if err != nil {
		return err
	}
	req.MaxDiagnostics = maxDiagnostics
	out := opts.out
	if out == "" && manifest != nil {
		out = manifest.Config.Translate.Out
	}
	dests, err := outputPaths(req.Inputs, out)
	if err != nil {
		return err
	}

	cacheEnabled := !opts.noCache && (manifest == nil || manifest.Config.Translate.CacheEnabled())
	if cacheEnabled {
		cache, cerr := pipeline.OpenCache("spmdfy")
		if cerr != nil {
			log.Warn("translation cache disabled", zap.Error(cerr))
		} else {
			req.Cache = cache
		}
	}
	if showTimings {
		req.Timer = observ.NewTimer()
	}

	var res *pipeline.Result
	if shouldUseTUI(mode, quiet) {
		res, err = runTranslateWithUI(ctx, cmd.ErrOrStderr(), "translating", req)
	} else {
		res, err = pipeline.Translate(ctx, req)
	}
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	if err := printDiagnostics(errOut, res, opts, color); err != nil {
		return err
	}
	if err := writeOutputs(cmd.OutOrStdout(), res, dests); err != nil {
		return err
	}
	if showTimings && !quiet {
		printTimings(errOut, res, req.Timer)
	}
	if !quiet {
		printSummary(errOut, res)
	}
	if res.HasErrors() {
		return errors.New("translation finished with errors")
	}
	if opts.warningsAsErrors && hasWarnings(res) {
		return errors.New("translation finished with warnings")
	}
	return nil
}

func hasWarnings(res *pipeline.Result) bool {
	for _, f := range res.Files {
		if f.Bag != nil && f.Bag.HasWarnings() {
			return true
		}
	}
	return false
}

func writeOutputs(stdout io.Writer, res *pipeline.Result, dests []string) error {
	for i, f := range res.Files {
		if f.Failed() {
			continue
		}
		if dests[i] == "" {
			if _, err := io.WriteString(stdout, f.Output); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dests[i]), 0o755); err != nil {
			return fmt.Errorf("%s: %w", dests[i], err)
		}
		if err := os.WriteFile(dests[i], []byte(f.Output), 0o644); err != nil {
			return fmt.Errorf("%s: %w", dests[i], err)
		}
	}
	return nil
}

type fileDiagnostics struct {
	Path string `json:"path"`
	diagfmt.DiagnosticsOutput
}

func printDiagnostics(w io.Writer, res *pipeline.Result, opts translateOptions, color bool) error {
	if opts.format == "json" {
		docs := make([]fileDiagnostics, 0, len(res.Files))
		for _, f := range res.Files {
			docs = append(docs, fileDiagnostics{
				Path: f.Path,
				DiagnosticsOutput: diagfmt.BuildDiagnosticsOutput(f.Bag, f.Files, diagfmt.JSONOpts{
					IncludePositions: true,
					IncludeNotes:     opts.withNotes,
				}),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	for _, f := range res.Files {
		if f.Bag == nil {
			continue
		}
		if opts.format == "short" {
			if _, err := io.WriteString(w, diag.FormatShort(f.Bag.Items(), f.Files, opts.withNotes)); err != nil {
				return err
			}
			continue
		}
		diagfmt.Pretty(w, f.Bag, f.Files, diagfmt.PrettyOpts{Color: color, ShowNotes: opts.withNotes})
	}
	return nil
}

func printTimings(w io.Writer, res *pipeline.Result, timer *observ.Timer) {
	for _, f := range res.Files {
		parts := make([]string, 0, len(pipeline.Stages))
		for _, stage := range pipeline.Stages {
			if f.Timings.Has(stage) {
				parts = append(parts, fmt.Sprintf("%s %.1f ms", stage, toMillis(f.Timings.Duration(stage))))
			}
		}
		suffix := ""
		if f.Cached {
			suffix = " (cached)"
		}
		fmt.Fprintf(w, "%s: %s%s\n", f.Path, strings.Join(parts, ", "), suffix)
	}
	if timer != nil {
		fmt.Fprint(w, timer.Summary())
	}
}

func printSummary(w io.Writer, res *pipeline.Result) {
	var kernels, failed, files int
	for _, f := range res.Files {
		if f.Failed() {
			continue
		}
		files++
		for _, k := range f.Kernels {
			kernels++
			if k.Err != nil {
				failed++
			}
		}
	}
	fmt.Fprintf(w, "translated %d of %d files, %d kernels", files, len(res.Files), kernels)
	if failed > 0 {
		fmt.Fprintf(w, " (%d failed)", failed)
	}
	fmt.Fprintln(w)
}

type translateOutcome struct {
	result *pipeline.Result
	err    error
}

func runTranslateWithUI(ctx context.Context, out io.Writer, title string, req pipeline.Request) (*pipeline.Result, error) {
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan translateOutcome, 1)

	go func() {
		reqCopy := req
		reqCopy.Progress = pipeline.ChannelSink{Ch: events}
		res, err := pipeline.Translate(ctx, reqCopy)
		outcomeCh <- translateOutcome{result: res, err: err}
		close(events)
	}()

	files := make([]string, len(req.Inputs))
	for i, in := range req.Inputs {
		files[i] = in.Path
	}
	uiErr := ui.Run(ctx, out, title, files, events)
	if uiErr != nil {
		// Keep draining so the pipeline never blocks on a full channel.
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil && !errors.Is(uiErr, context.Canceled) {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
