// Package driver runs asset manifests: each entry is routed to a compiler by
// the first matching rule and compiled to the rule's output paths.
package driver

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/internal/config"
	"github.com/Faultbox/midgard-assets/internal/logger"
	"github.com/Faultbox/midgard-assets/pkg/encoding"
)

// Status is the outcome of one manifest entry.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailed:
		return "FAIL"
	case StatusSkipped:
		return "SKIP"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result describes one manifest entry after a build.
type Result struct {
	Manifest string
	Entry    string
	Compiler string
	Outputs  []string
	Status   Status
	Err      error // set when Status is StatusFailed
}

// Driver builds manifests.
type Driver struct {
	rules     []Rule
	registry  *Registry
	root      string
	outputDir string
	jobs      int
	log       *zap.Logger
}

// New creates a driver for cfg's rules. Every rule must name a compiler in
// registry.
func New(cfg *config.Config, registry *Registry) (*Driver, error) {
	rules, err := CompileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if _, ok := registry.Get(r.Compiler); !ok {
			return nil, fmt.Errorf("rule %s: unknown compiler %q (have %s)",
				r.Pattern, r.Compiler, strings.Join(registry.Names(), ", "))
		}
	}

	jobs := cfg.Build.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	return &Driver{
		rules:     rules,
		registry:  registry,
		root:      cfg.Build.Root,
		outputDir: cfg.Build.OutputDir,
		jobs:      jobs,
		log:       logger.Named("driver"),
	}, nil
}

// Run builds every manifest in order. An unreadable manifest is logged and
// skipped. Results are in manifest order; the error is non-nil only if ctx
// was canceled.
func (d *Driver) Run(ctx context.Context, manifests []string) ([]Result, error) {
	var results []Result
	for _, path := range manifests {
		entries, err := ReadManifest(path)
		if err != nil {
			d.log.Error("failed to read manifest", zap.String("manifest", path), zap.Error(err))
			continue
		}
		results = append(results, d.BuildEntries(ctx, path, entries)...)
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

// BuildEntries builds entries concurrently. A failed entry never stops the
// others.
func (d *Driver) BuildEntries(ctx context.Context, manifest string, entries []string) []Result {
	results := make([]Result, len(entries))

	var g errgroup.Group
	g.SetLimit(d.jobs)
	for i, entry := range entries {
		g.Go(func() error {
			results[i] = d.Build(ctx, entry)
			results[i].Manifest = manifest
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Build compiles one manifest entry.
func (d *Driver) Build(ctx context.Context, entry string) Result {
	res := Result{Entry: entry, Status: StatusSkipped}

	rule, outputs, ok := d.match(entry)
	if !ok {
		d.log.Warn("no compiler found for manifest entry", zap.String("entry", entry))
		return res
	}
	res.Compiler = rule.Compiler
	for i, out := range outputs {
		outputs[i] = d.resolve(d.outputDir, out)
	}
	res.Outputs = outputs

	if err := ctx.Err(); err != nil {
		return d.fail(res, err)
	}
	for _, out := range outputs {
		dir := filepath.Dir(out)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return d.fail(res, compiler.IOError(dir, err))
		}
	}

	c, _ := d.registry.Get(rule.Compiler)
	d.log.Info("compiling", zap.String("entry", entry), zap.String("compiler", c.Name()))
	if err := c.Compile(ctx, d.resolve(d.root, entry), outputs); err != nil {
		return d.fail(res, err)
	}
	res.Status = StatusOK
	return res
}

// match returns the first rule matching entry that has outputs. Matching
// rules without outputs are reported and passed over.
func (d *Driver) match(entry string) (Rule, []string, bool) {
	for _, r := range d.rules {
		outputs, ok := r.Expand(entry)
		if !ok {
			continue
		}
		if len(outputs) == 0 {
			d.log.Warn("no outputs specified for manifest entry, ignoring rule",
				zap.String("entry", entry), zap.String("pattern", r.Pattern.String()))
			continue
		}
		return r, outputs, true
	}
	return Rule{}, nil, false
}

func (d *Driver) resolve(base, path string) string {
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

func (d *Driver) fail(res Result, err error) Result {
	res.Status = StatusFailed
	res.Err = err
	d.log.Error("failed to compile",
		zap.String("entry", res.Entry),
		zap.Strings("outputs", res.Outputs),
		zap.Error(err))
	return res
}

// ReadManifest returns the entries of a manifest: one path per line, blank
// lines and lines starting with # ignored.
func ReadManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []string
	sc := bufio.NewScanner(encoding.NewReader(f))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return entries, nil
}

// Counts tallies results by status.
func Counts(results []Result) (ok, failed, skipped int) {
	for _, r := range results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return ok, failed, skipped
}

// Failed reports whether any result failed.
func Failed(results []Result) bool {
	return slices.ContainsFunc(results, func(r Result) bool { return r.Status == StatusFailed })
}
