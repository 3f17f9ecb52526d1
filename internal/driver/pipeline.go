package driver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kilnhq/kiln/internal/assemble"
	"github.com/kilnhq/kiln/internal/buildspec"
	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/paths"
	"github.com/kilnhq/kiln/internal/runtime"
)

// pipeline is the per-request state. Never shared: every Execute call
// builds its own and throws it away.
type pipeline struct {
	cfg  Config
	spec *buildspec.Spec
	res  map[string]cache.Resolution

	id    string
	env   Environment
	ring  *logRing
	state *planState

	stage   Stage
	cleaned bool

	scratch  string // WorkDir/<id>: downloaded blobs, gone after cleanup.
	stageDir string // OutputDir/.stage-<id>: results before the commit rename.
	outDir   string // Final output directory, set by the Extracting stage.

	dirs      map[string]string // Component name to extracted host tree.
	sources   map[string]string // Component name to SourceBuilt or tier name.
	warnings  []CacheIntegrityWarning
	conflicts []string
}

func newPipeline(cfg Config, spec *buildspec.Spec, res map[string]cache.Resolution) *pipeline {
	id := uuid.NewString()
	return &pipeline{
		cfg:      cfg,
		spec:     spec,
		res:      normalizeResolutions(spec, res),
		id:       id,
		ring:     newLogRing(cfg.LogLines),
		state:    newPlanState(),
		scratch:  filepath.Join(cfg.WorkDir, id),
		stageDir: filepath.Join(cfg.OutputDir, ".stage-"+id),
		dirs:     make(map[string]string),
		sources:  make(map[string]string),
	}
}

// normalizeResolutions copies the caller's map so demotions stay local,
// and defaults every component missing from it to a local build.
func normalizeResolutions(spec *buildspec.Spec, res map[string]cache.Resolution) map[string]cache.Resolution {
	out := make(map[string]cache.Resolution, len(spec.Components))
	for _, comp := range spec.Components {
		r, ok := res[comp.Name]
		if !ok {
			r = cache.Resolution{State: cache.MustBuild}
		}
		out[comp.Name] = r
	}
	return out
}

func (p *pipeline) run(ctx context.Context) (*Output, error) {
	if p.cfg.Timeouts.Pipeline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeouts.Pipeline)
		defer cancel()
	}
	defer p.cleanup()

	slog.Info("pipeline started",
		"pipeline", p.id,
		"product", p.spec.Product,
		"version", p.spec.Version,
		"platform", p.spec.Platform,
	)

	stages := []struct {
		stage  Stage
		budget time.Duration
		fn     func(context.Context) error
	}{
		{StageProvisioning, p.cfg.Timeouts.Provision, p.provision},
		{StagePreparing, p.cfg.Timeouts.Prepare, p.prepare},
		{StageResolving, p.cfg.Timeouts.Resolve, p.materialize},
		{StageBuilding, p.cfg.Timeouts.Build, p.build},
		{StageAssembling, p.cfg.Timeouts.Assemble, p.assemble},
		{StageExtracting, p.cfg.Timeouts.Extract, p.extract},
	}

	for _, s := range stages {
		// Cancellation is honored at stage boundaries only; a canceled
		// pipeline goes straight to cleanup.
		if err := ctx.Err(); err != nil {
			p.stage = StageFailed
			return nil, fmt.Errorf("%w: %v", ErrDriver, err)
		}
		if err := p.runStage(ctx, s.stage, s.budget, s.fn); err != nil {
			p.stage = StageFailed
			return nil, err
		}
	}

	p.stage = StageDone
	out := p.output()
	slog.Info("pipeline done",
		"pipeline", p.id,
		"output", out.Dir,
		"warnings", len(out.Warnings),
	)
	return out, nil
}

func (p *pipeline) runStage(ctx context.Context, stage Stage, budget time.Duration, fn func(context.Context) error) error {
	p.stage = stage
	start := time.Now()
	slog.Info("stage started", "pipeline", p.id, "stage", stage)

	sctx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	if err := fn(sctx); err != nil {
		// The stage budget firing is a stage timeout; a parent deadline or
		// cancellation propagates as-is.
		if sctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &StageTimeoutError{Stage: stage, Budget: budget}
		}
		return fmt.Errorf("stage %s: %w", stage, err)
	}

	slog.Info("stage done",
		"pipeline", p.id,
		"stage", stage,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// cleanup releases everything the pipeline holds. It runs exactly once,
// success or failure, and uses a fresh context so a canceled pipeline
// still tears its environment down.
func (p *pipeline) cleanup() {
	if p.cleaned {
		return
	}
	p.cleaned = true
	p.stage = StageCleanup

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if p.env != nil {
		p.env.Destroy(ctx)
	}
	if err := os.RemoveAll(p.scratch); err != nil {
		slog.Warn("scratch cleanup failed", "pipeline", p.id, "dir", p.scratch, "error", err)
	}
	if p.stageDir != "" {
		if err := os.RemoveAll(p.stageDir); err != nil {
			slog.Warn("staging cleanup failed", "pipeline", p.id, "dir", p.stageDir, "error", err)
		}
	}
	slog.Info("pipeline cleaned up", "pipeline", p.id)
}

// provision acquires the isolated environment, retrying transient
// failures under the driver's policy.
func (p *pipeline) provision(ctx context.Context) error {
	for _, dir := range []string{p.cfg.CacheDir, p.scratch, p.stageDir} {
		if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
			return err
		}
	}

	mounts := []runtime.Mount{
		{Source: p.cfg.CacheDir, Target: envCache},
	}

	var attempts uint64
	err := p.cfg.Retry.DoNotify(ctx, func() error {
		attempts++
		env, err := p.cfg.Provisioner.Provision(ctx, p.spec, "kiln-"+p.id, mounts)
		if err != nil {
			return err
		}
		p.env = env
		return nil
	}, func(err error, next time.Duration) {
		slog.Warn("provisioning failed, will retry",
			"pipeline", p.id,
			"error", err,
			"next_attempt_in", next.Round(time.Millisecond),
		)
	})
	if err != nil {
		return &ProvisionError{Attempts: attempts, Err: err}
	}

	slog.Info("environment provisioned", "pipeline", p.id, "environment", p.env.ID())
	return nil
}

// prepare lays out the environment: the build directories, the spec
// manifest the package manager reads, and the bootstrap plan. Idempotent
// end to end.
func (p *pipeline) prepare(ctx context.Context) error {
	for _, dir := range []string{envRoot, envInstall, envSrc} {
		if err := p.env.MkdirAll(ctx, dir); err != nil {
			return err
		}
	}

	manifest, err := buildspec.EncodeManifest(p.spec)
	if err != nil {
		return err
	}
	if err := p.env.WriteFile(ctx, envManifest, manifest); err != nil {
		return err
	}

	for _, st := range bootstrapPlan() {
		if st.run == "" {
			p.state.apply(st)
			continue
		}
		if err := p.runCommand(ctx, st.run); err != nil {
			return err
		}
	}
	return nil
}

// build compiles every component the cache could not serve, in spec
// order. When the spec demands verification, each built tree is checked
// before the next component starts. The first failure aborts: later
// components depend on earlier ones, so continuing would only produce
// noise.
func (p *pipeline) build(ctx context.Context) error {
	var toBuild []buildspec.Component
	for _, comp := range p.spec.Components {
		if p.res[comp.Name].State == cache.MustBuild {
			toBuild = append(toBuild, comp)
		}
	}
	if len(toBuild) == 0 {
		slog.Info("building skipped, every component cached", "pipeline", p.id)
		return nil
	}

	p.linkExternalTools(ctx)

	runner := &envRunner{p: p}
	for _, comp := range toBuild {
		if err := ctx.Err(); err != nil {
			return err
		}
		slog.Info("building component",
			"pipeline", p.id,
			"component", comp.Name,
			"version", comp.Version,
		)
		if err := p.cfg.Manager.BuildComponent(ctx, runner, comp, envManifest, installDir(comp.Name)); err != nil {
			return &BuildError{Component: comp.Name, Err: err, LogTail: p.ring.Tail(logTailLines)}
		}
		if p.spec.Verify {
			if err := p.cfg.Manager.VerifyComponent(ctx, runner, comp, installDir(comp.Name)); err != nil {
				return &VerificationError{Component: comp.Name, Err: err, LogTail: p.ring.Tail(logTailLines)}
			}
		}
		p.sources[comp.Name] = SourceBuilt
		if comp.Class == buildspec.ClassExternal {
			p.linkTool(ctx, comp.Name)
		}
	}
	return nil
}

// envRunner adapts the environment to the package manager's command
// surface, carrying the accumulated bootstrap state and streaming output
// into the log ring.
type envRunner struct{ p *pipeline }

func (r *envRunner) Run(ctx context.Context, command string) (int, error) {
	return r.p.env.Run(ctx, command, runtime.RunOptions{
		Env:     r.p.state.environ(),
		Workdir: r.p.state.workdir,
		Output:  r.p.ring,
	})
}

func (p *pipeline) runCommand(ctx context.Context, command string) error {
	exit, err := p.env.Run(ctx, command, runtime.RunOptions{
		Env:     p.state.environ(),
		Workdir: p.state.workdir,
		Output:  p.ring,
	})
	if err != nil {
		return err
	}
	if exit != 0 {
		return fmt.Errorf("%q exited %d", command, exit)
	}
	return nil
}

// linkExternalTools puts materialized build tooling on the default PATH.
// Best effort and idempotent: links are forced, and a tool without a bin
// directory is skipped by the shell glob.
func (p *pipeline) linkExternalTools(ctx context.Context) {
	for _, comp := range p.spec.Components {
		if comp.Class != buildspec.ClassExternal || p.sources[comp.Name] == "" {
			continue
		}
		p.linkTool(ctx, comp.Name)
	}
}

func (p *pipeline) linkTool(ctx context.Context, name string) {
	cmd := fmt.Sprintf("ln -sf %s/bin/* /usr/local/bin/ 2>/dev/null || true", installDir(name))
	if err := p.runCommand(ctx, cmd); err != nil {
		slog.Warn("tool link failed", "pipeline", p.id, "component", name, "error", err)
	}
}

// assemble pulls the component trees out of the environment and merges
// the embedded ones into the unified view. External tooling is extracted
// too, for component-level publishing, but never enters the view. Merge
// order is spec order, so the product wins file conflicts
// deterministically.
func (p *pipeline) assemble(ctx context.Context) error {
	componentsDir := filepath.Join(p.stageDir, "components")

	var trees []assemble.Tree
	for _, comp := range p.spec.Components {
		dest := filepath.Join(componentsDir, comp.Name)
		if err := p.env.Extract(ctx, installDir(comp.Name), dest); err != nil {
			return fmt.Errorf("extract %s: %w", comp.Name, err)
		}
		p.dirs[comp.Name] = dest
		if comp.Class == buildspec.ClassEmbed {
			trees = append(trees, assemble.Tree{Name: comp.Name, Dir: dest})
		}
	}

	conflicts, err := assemble.MergeView(filepath.Join(p.stageDir, "view"), trees)
	if err != nil {
		return err
	}
	for _, c := range conflicts {
		p.conflicts = append(p.conflicts, fmt.Sprintf("%s: %s over %s", c.Path, c.Winner, c.Loser))
	}
	if len(conflicts) > 0 {
		slog.Info("view merged with conflicts", "pipeline", p.id, "conflicts", len(conflicts))
	}
	return nil
}

// extract commits the staged results to durable storage. The manifest,
// view and component trees move into place with one rename, so a
// concurrent reader never sees a partial output.
func (p *pipeline) extract(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	manifest := p.manifest()
	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(p.stageDir, "manifest.yaml"), data, paths.DefaultFileMode); err != nil {
		return err
	}

	final := filepath.Join(p.cfg.OutputDir, fmt.Sprintf("%s-%s-%s", p.spec.Product, p.spec.Version, p.spec.Platform))
	if err := os.RemoveAll(final); err != nil {
		return err
	}
	if err := os.Rename(p.stageDir, final); err != nil {
		return err
	}
	p.stageDir = "" // Committed; nothing left for cleanup to remove.
	p.outDir = final

	for name := range p.dirs {
		p.dirs[name] = filepath.Join(final, "components", name)
	}
	return nil
}

func (p *pipeline) manifest() Manifest {
	records := make([]ComponentRecord, 0, len(p.spec.Components))
	for _, comp := range p.spec.Components {
		records = append(records, ComponentRecord{
			Name:    comp.Name,
			Version: comp.Version,
			Class:   comp.Class,
			Source:  p.sources[comp.Name],
		})
	}
	return Manifest{
		Product:    p.spec.Product,
		Version:    p.spec.Version,
		Toolchain:  p.spec.Toolchain,
		Platform:   p.spec.Platform,
		Prefix:     assemble.BuildPrefix(p.spec.Product),
		Components: records,
		Conflicts:  p.conflicts,
	}
}

func (p *pipeline) output() *Output {
	return &Output{
		Dir:           p.outDir,
		ViewDir:       filepath.Join(p.outDir, "view"),
		ManifestPath:  filepath.Join(p.outDir, "manifest.yaml"),
		Manifest:      p.manifest(),
		ComponentDirs: p.dirs,
		Warnings:      p.warnings,
	}
}
