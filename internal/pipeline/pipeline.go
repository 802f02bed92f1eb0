// Package pipeline drives the translation of CUDA files: load the clang
// AST, linearize every function, restructure kernels around barriers and
// emit the target text. Files are translated in parallel and kernels of
// one file fan out to workers; a failing kernel is reported and left out
// without affecting its siblings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blockspacer/spmdfy/internal/backend/ispc"
	"github.com/blockspacer/spmdfy/internal/chain"
	"github.com/blockspacer/spmdfy/internal/ctxlog"
	"github.com/blockspacer/spmdfy/internal/cuast"
	"github.com/blockspacer/spmdfy/internal/diag"
	"github.com/blockspacer/spmdfy/internal/fission"
	"github.com/blockspacer/spmdfy/internal/linearize"
	"github.com/blockspacer/spmdfy/internal/observ"
	"github.com/blockspacer/spmdfy/internal/project"
	"github.com/blockspacer/spmdfy/internal/source"
	"github.com/blockspacer/spmdfy/internal/trace"
	"github.com/blockspacer/spmdfy/internal/typemap"
	"github.com/blockspacer/spmdfy/internal/workspace"
)

const defaultMaxDiagnostics = 100

// Input is one file to translate.
type Input struct {
	// Path is a CUDA source, or a clang JSON AST when it ends in ".json".
	Path string
	// AST optionally names a pre-dumped JSON AST of the source at Path;
	// clang is not run when it is set.
	AST string
}

// Request configures a translation run.
type Request struct {
	Inputs []Input
	Clang  cuast.ClangOptions
	// Tables defaults to typemap.Default.
	Tables *typemap.Tables
	// Barriers defaults to workspace.DefaultBarriers.
	Barriers   []string
	NullToken  string
	SharedSize string
	// Jobs bounds both the files and the kernels of one file processed
	// at once. Zero means GOMAXPROCS.
	Jobs           int
	Cache          *Cache
	Progress       ProgressSink
	MaxDiagnostics int
	// Timer, when set, accumulates stage durations across all files.
	Timer *observ.Timer
}

// KernelResult reports the restructuring of one kernel.
type KernelResult struct {
	Name  string
	Stats fission.Stats
	Err   error
}

// FileResult is the outcome for one input.
type FileResult struct {
	Path string
	// Output is the emitted text, empty when the file failed to load.
	Output  string
	Files   *source.FileSet
	Bag     *diag.Bag
	Kernels []KernelResult
	Cached  bool
	Timings Timings
	// Err is set when the file could not be loaded or emitted at all.
	Err error
}

// Failed reports whether nothing usable was produced for the file.
func (r *FileResult) Failed() bool {
	return r == nil || r.Err != nil
}

// Result holds one FileResult per input, in input order.
type Result struct {
	Files []*FileResult
}

// HasErrors reports whether any file failed or carries error diagnostics.
func (r *Result) HasErrors() bool {
	for _, f := range r.Files {
		if f.Failed() || f.Bag.HasErrors() {
			return true
		}
	}
	return false
}

func (req *Request) jobs() int {
	if req.Jobs > 0 {
		return req.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

func (req *Request) tables() *typemap.Tables {
	if req.Tables != nil {
		return req.Tables
	}
	return typemap.Default()
}

func (req *Request) emitOptions(ws *workspace.Workspace) ispc.Options {
	return ispc.Options{
		Tables:          req.tables(),
		DeviceFunctions: ws.DeviceFunctions,
		NullToken:       req.NullToken,
		SharedSize:      req.SharedSize,
	}
}

// cacheOptions lists every request setting that changes the output.
func (req *Request) cacheOptions() []string {
	barriers := req.Barriers
	if len(barriers) == 0 {
		barriers = workspace.DefaultBarriers
	}
	return []string{
		"barriers=" + strings.Join(barriers, ","),
		"null=" + req.NullToken,
		"shared=" + req.SharedSize,
	}
}

// Translate runs every input through the pipeline. Per-file problems are
// recorded on the file's result; the returned error is only set when ctx
// is cancelled.
func Translate(ctx context.Context, req Request) (*Result, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.New("no inputs")
	}
	ctx, span := trace.Start(ctx, trace.ScopeDriver, "translate")
	defer span.End(strconv.Itoa(len(req.Inputs)) + " files")

	for _, in := range req.Inputs {
		emit(req.Progress, Event{File: in.Path, Stage: StageLoad, Status: StatusQueued})
	}

	res := &Result{Files: make([]*FileResult, len(req.Inputs))}
	g := new(errgroup.Group)
	g.SetLimit(req.jobs())
	for i, in := range req.Inputs {
		i, in := i, in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res.Files[i] = translateFile(ctx, &req, in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, ctx.Err()
}

type fileTask struct {
	req *Request
	in  Input
	res *FileResult
	log *zap.Logger

	unit *cuast.Unit
	ast  []byte
	key  project.Digest
}

func translateFile(ctx context.Context, req *Request, in Input) *FileResult {
	limit := req.MaxDiagnostics
	if limit <= 0 {
		limit = defaultMaxDiagnostics
	}
	t := &fileTask{
		req: req,
		in:  in,
		res: &FileResult{Path: in.Path, Files: source.NewFileSet(), Bag: diag.NewBag(limit)},
	}
	ctx, span := trace.Start(ctx, trace.ScopeDriver, "file "+in.Path)
	t.log = ctxlog.FromContext(ctx).With(zap.String("file", in.Path))
	ctx = ctxlog.WithLogger(ctx, t.log)

	t.run(ctx)

	detail := "ok"
	switch {
	case t.res.Err != nil:
		detail = t.res.Err.Error()
	case t.res.Cached:
		detail = "cached"
	}
	span.End(detail)
	return t.res
}

func (t *fileTask) run(ctx context.Context) {
	if err := t.stage(ctx, StageLoad, t.load); err != nil {
		t.res.Err = err
		return
	}
	if t.fromCache() {
		for _, st := range Stages[1:] {
			emit(t.req.Progress, Event{File: t.in.Path, Stage: st, Status: StatusCached})
		}
		return
	}

	ws := workspace.New(t.unit, t.req.Barriers)
	var cu *chain.Unit
	err := t.stage(ctx, StageLinearize, func(ctx context.Context) error {
		var failures []linearize.Failure
		cu, failures = linearize.Unit(ctx, t.unit, linearize.Options{Reporter: diag.NewDedupReporter(diag.BagReporter{Bag: t.res.Bag})})
		for _, f := range failures {
			t.reportChainError(f.Func.Name, f.Func.Span, f.Err)
		}
		return ctx.Err()
	})
	if err != nil {
		t.res.Err = err
		return
	}

	var failed map[*chain.Chain]bool
	err = t.stage(ctx, StageFission, func(ctx context.Context) error {
		var err error
		failed, err = t.restructure(ctx, ws, cu.Kernels())
		return err
	})
	if err != nil {
		t.res.Err = err
		return
	}

	// Kernel workers report concurrently.
	t.res.Bag.Sort()
	out := keep(cu, failed)
	err = t.stage(ctx, StageEmit, func(ctx context.Context) error {
		text, err := ispc.EmitUnit(ctx, out, t.req.emitOptions(ws))
		if err != nil {
			return err
		}
		t.res.Output = text
		return nil
	})
	if err != nil {
		t.res.Err = err
		return
	}
	t.store()
}

// stage runs fn as one timed, traced pipeline stage and publishes its
// progress.
func (t *fileTask) stage(ctx context.Context, st Stage, fn func(context.Context) error) error {
	emit(t.req.Progress, Event{File: t.in.Path, Stage: st, Status: StatusWorking})
	ctx, span := trace.Start(ctx, trace.ScopePass, string(st))
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	t.res.Timings.Set(st, elapsed)
	if t.req.Timer != nil {
		t.req.Timer.Add(string(st), elapsed)
	}
	status := StatusDone
	detail := ""
	if err != nil {
		status = StatusError
		detail = err.Error()
		t.log.Error("stage failed", zap.String("stage", string(st)), zap.Error(err))
	} else {
		t.log.Debug("stage done", zap.String("stage", string(st)), zap.Duration("elapsed", elapsed))
	}
	span.End(detail)
	emit(t.req.Progress, Event{File: t.in.Path, Stage: st, Status: status, Err: err, Elapsed: elapsed})
	return err
}

func (t *fileTask) load(ctx context.Context) error {
	ast, opts, err := t.readInput(ctx)
	if err != nil {
		t.res.Bag.Add(diag.NewError(diag.InputLoadFailed, source.Span{}, err.Error()).WithSubject(t.in.Path))
		return err
	}
	unit, err := cuast.LoadClangJSON(ast, t.res.Files, opts)
	if err != nil {
		t.res.Bag.Add(diag.NewError(diag.InputLoadFailed, source.Span{}, err.Error()).WithSubject(t.in.Path))
		return err
	}
	t.unit, t.ast = unit, ast
	return nil
}

// readInput returns the JSON AST for the input and the options to load it
// with.
func (t *fileTask) readInput(ctx context.Context) ([]byte, cuast.LoadOptions, error) {
	switch {
	case t.in.AST != "":
		// #nosec G304 -- paths are provided by the caller
		ast, err := os.ReadFile(t.in.AST)
		if err != nil {
			return nil, cuast.LoadOptions{}, err
		}
		// #nosec G304 -- paths are provided by the caller
		src, err := os.ReadFile(t.in.Path)
		if err != nil {
			return nil, cuast.LoadOptions{}, err
		}
		return ast, cuast.LoadOptions{Source: src}, nil
	case strings.EqualFold(filepath.Ext(t.in.Path), ".json"):
		// #nosec G304 -- path is provided by the caller
		ast, err := os.ReadFile(t.in.Path)
		return ast, cuast.LoadOptions{}, err
	default:
		// #nosec G304 -- path is provided by the caller
		src, err := os.ReadFile(t.in.Path)
		if err != nil {
			return nil, cuast.LoadOptions{}, err
		}
		ast, err := cuast.DumpAST(ctx, t.in.Path, t.req.Clang)
		if err != nil {
			return nil, cuast.LoadOptions{}, err
		}
		return ast, cuast.LoadOptions{MainFile: t.in.Path, Source: src}, nil
	}
}

func (t *fileTask) fromCache() bool {
	if t.req.Cache == nil {
		return false
	}
	var src []byte
	if f := t.res.Files.Get(t.unit.File); f != nil {
		src = f.Content
	}
	t.key = CacheKey(t.ast, src, t.req.tables().Fingerprint(), t.req.cacheOptions()...)
	hit, ok, err := t.req.Cache.Get(t.key)
	if err != nil {
		t.log.Warn("cache read failed", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	t.res.Output = hit.Output
	t.res.Cached = true
	for _, name := range hit.Kernels {
		t.res.Kernels = append(t.res.Kernels, KernelResult{Name: name})
	}
	for _, d := range hit.Diagnostics {
		t.res.Bag.Add(d)
	}
	t.log.Debug("cache hit")
	return true
}

// store caches the result of a file translated without errors.
func (t *fileTask) store() {
	if t.req.Cache == nil || t.res.Bag.HasErrors() {
		return
	}
	kernels := make([]string, 0, len(t.res.Kernels))
	for _, k := range t.res.Kernels {
		kernels = append(kernels, k.Name)
	}
	err := t.req.Cache.Put(t.key, &CachedResult{
		Path:        t.in.Path,
		Output:      t.res.Output,
		Kernels:     kernels,
		Diagnostics: t.res.Bag.Items(),
		Created:     time.Now(),
	})
	if err != nil {
		t.log.Warn("cache write failed", zap.Error(err))
	}
}

// restructure runs the fission pass over every kernel. Each worker owns
// one chain and writes only its own result slot.
func (t *fileTask) restructure(ctx context.Context, ws *workspace.Workspace, kernels []*chain.Chain) (map[*chain.Chain]bool, error) {
	results := make([]KernelResult, len(kernels))
	g := new(errgroup.Group)
	g.SetLimit(t.req.jobs())
	for i, k := range kernels {
		i, k := i, k
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = restructureKernel(ctx, ws, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := make(map[*chain.Chain]bool)
	for i, r := range results {
		if r.Err != nil {
			failed[kernels[i]] = true
			var sp source.Span
			if fn := kernels[i].Func; fn != nil {
				sp = fn.Span
			}
			t.reportChainError(r.Name, sp, r.Err)
		}
	}
	t.res.Kernels = results
	return failed, nil
}

func restructureKernel(ctx context.Context, ws *workspace.Workspace, k *chain.Chain) KernelResult {
	r := KernelResult{Name: k.Name}
	q, err := ws.Sync.Collect(k)
	if err != nil {
		r.Err = err
		return r
	}
	r.Stats, r.Err = fission.Kernel(ctx, k, q)
	if r.Err != nil {
		return r
	}
	if err := errors.Join(fission.CheckMarkers(k), k.Validate()); err != nil {
		r.Err = fmt.Errorf("fission %s: %w", k.Name, err)
	}
	return r
}

// keep returns a copy of u without the chains in drop.
func keep(u *chain.Unit, drop map[*chain.Chain]bool) *chain.Unit {
	if len(drop) == 0 {
		return u
	}
	out := &chain.Unit{Source: u.Source, Items: make([]chain.Item, 0, len(u.Items))}
	for _, it := range u.Items {
		if it.Chain != nil && drop[it.Chain] {
			continue
		}
		out.Items = append(out.Items, it)
	}
	return out
}

// reportChainError turns a construction or restructuring error into a
// diagnostic naming the function and the offending node kind.
func (t *fileTask) reportChainError(name string, sp source.Span, err error) {
	d := diag.NewError(ChainErrorCode(err), sp, err.Error()).WithSubject(name)
	var ne *chain.NodeError
	if errors.As(err, &ne) {
		d = d.WithNote(sp, fmt.Sprintf("at %s node %d during %s", ne.Kind, ne.Node, ne.Op))
	}
	t.res.Bag.Add(d)
	t.log.Warn("function omitted", zap.String("func", name), zap.Error(err))
}

// ChainErrorCode maps a chain error to its diagnostic code.
func ChainErrorCode(err error) diag.Code {
	switch {
	case errors.Is(err, chain.ErrUnsupportedOperation):
		return diag.ChainUnsupportedOperation
	case errors.Is(err, chain.ErrBrokenChain), errors.Is(err, chain.ErrUnknownNode), errors.Is(err, chain.ErrAlreadyLinked):
		return diag.ChainBroken
	case errors.Is(err, chain.ErrUnrecognizedBoundary):
		return diag.ChainUnrecognizedBoundary
	default:
		return diag.ChainInvalid
	}
}
