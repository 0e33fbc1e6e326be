package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/internal/config"
)

// fakeCompiler records calls and writes the input name to every output.
type fakeCompiler struct {
	name   string
	failOn string

	mu    sync.Mutex
	calls []string
}

func (f *fakeCompiler) Name() string { return f.name }

func (f *fakeCompiler) Compile(ctx context.Context, input string, outputs []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	f.mu.Unlock()

	if f.failOn != "" && strings.HasSuffix(input, f.failOn) {
		return compiler.InputErrorf(input, "bad asset")
	}
	for _, out := range outputs {
		if err := os.WriteFile(out, []byte(input), 0644); err != nil {
			return compiler.IOError(out, err)
		}
	}
	return nil
}

func newTestDriver(t *testing.T, rules []config.RuleConfig, compilers ...compiler.Compiler) (*Driver, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Build.Root = filepath.Join(dir, "src")
	cfg.Build.OutputDir = filepath.Join(dir, "out")
	cfg.Build.Jobs = 4
	cfg.Rules = rules

	reg := NewRegistry()
	for _, c := range compilers {
		reg.Register(c)
	}
	d, err := New(cfg, reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d, dir
}

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNormalizeTemplate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Assets/$1.mdl", "Assets/${1}.mdl"},
		{"Assets/$1_MTL.shd", "Assets/${1}_MTL.shd"},
		{"$2/$1", "${2}/${1}"},
		{"${1}x", "${1}x"},
		{"plain.bin", "plain.bin"},
	}

	for _, tt := range tests {
		if got := normalizeTemplate(tt.in); got != tt.want {
			t.Errorf("normalizeTemplate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRuleExpand(t *testing.T) {
	rules, err := CompileRules(config.DefaultRules())
	if err != nil {
		t.Fatalf("CompileRules failed: %v", err)
	}

	tests := []struct {
		entry    string
		compiler string
		outputs  []string
	}{
		{"models/crate.obj", config.CompilerMesh, []string{"Assets/models/crate.mdl", "Assets/models/crate.mdg"}},
		{"Shaders/Basic.metal", config.CompilerShaderMetal, []string{"Assets/Shaders/Basic_MTL.shd"}},
		{"fx/water.wgsl", config.CompilerShaderWGSL, []string{"Assets/fx/water_WGSL.shd"}},
		{"ui/icon.tga", config.CompilerTexture, []string{"Assets/ui/icon.tex"}},
		{"readme.txt", "", nil},
		{"crate.obj.bak", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			for _, r := range rules {
				outputs, ok := r.Expand(tt.entry)
				if !ok {
					continue
				}
				if r.Compiler != tt.compiler || !slices.Equal(outputs, tt.outputs) {
					t.Errorf("got %s %v, want %s %v", r.Compiler, outputs, tt.compiler, tt.outputs)
				}
				return
			}
			if tt.compiler != "" {
				t.Errorf("expected %s to match a rule", tt.entry)
			}
		})
	}
}

func TestCompileRulesInvalid(t *testing.T) {
	_, err := CompileRules([]config.RuleConfig{{Pattern: "(", Compiler: "x"}})
	if err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestNewUnknownCompiler(t *testing.T) {
	cfg := config.Default()
	if _, err := New(cfg, NewRegistry()); err == nil {
		t.Error("expected error for rules naming unregistered compilers")
	}
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "\xEF\xBB\xBFa.obj\r\n\r\n  b.metal  \n# comment\n\t\nc.png")

	entries, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	want := []string{"a.obj", "b.metal", "c.png"}
	if !slices.Equal(entries, want) {
		t.Errorf("expected %v, got %v", want, entries)
	}

	if _, err := ReadManifest(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestRunBuildsEntries(t *testing.T) {
	fc := &fakeCompiler{name: "fake"}
	rules := []config.RuleConfig{{Pattern: `(.*)\.src`, Compiler: "fake", Outputs: []string{"Assets/$1_A.bin", "Assets/$1_B.bin"}}}
	d, dir := newTestDriver(t, rules, fc)

	manifest := writeManifest(t, dir, "one.src\nsub/two.src\n")
	results, err := d.Run(context.Background(), []string{manifest})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	res := results[1]
	if res.Status != StatusOK || res.Entry != "sub/two.src" || res.Manifest != manifest {
		t.Errorf("unexpected result %+v", res)
	}
	wantOut := filepath.Join(dir, "out", "Assets", "sub", "two_B.bin")
	if res.Outputs[1] != wantOut {
		t.Errorf("expected output %s, got %s", wantOut, res.Outputs[1])
	}
	data, err := os.ReadFile(wantOut)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if string(data) != filepath.Join(dir, "src", "sub", "two.src") {
		t.Errorf("expected compiler input resolved against root, got %s", data)
	}
}

func TestRunContinuesAfterFailure(t *testing.T) {
	fc := &fakeCompiler{name: "fake", failOn: "bad.src"}
	rules := []config.RuleConfig{{Pattern: `(.*)\.src`, Compiler: "fake", Outputs: []string{"$1.bin"}}}
	d, dir := newTestDriver(t, rules, fc)

	manifest := writeManifest(t, dir, "a.src\nbad.src\nunknown.txt\nc.src\n")
	missing := filepath.Join(dir, "missing.txt")
	results, err := d.Run(context.Background(), []string{missing, manifest})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var statuses []Status
	for _, r := range results {
		statuses = append(statuses, r.Status)
	}
	want := []Status{StatusOK, StatusFailed, StatusSkipped, StatusOK}
	if !slices.Equal(statuses, want) {
		t.Fatalf("expected statuses %v, got %v", want, statuses)
	}
	if !errors.Is(results[1].Err, compiler.ErrInput) {
		t.Errorf("expected input error, got %v", results[1].Err)
	}
	if len(fc.calls) != 3 {
		t.Errorf("expected 3 compile calls, got %d", len(fc.calls))
	}

	ok, failed, skipped := Counts(results)
	if ok != 2 || failed != 1 || skipped != 1 {
		t.Errorf("expected counts 2/1/1, got %d/%d/%d", ok, failed, skipped)
	}
	if !Failed(results) {
		t.Error("expected Failed to report the failure")
	}
}

func TestFirstRuleWithOutputsWins(t *testing.T) {
	first := &fakeCompiler{name: "first"}
	second := &fakeCompiler{name: "second"}
	third := &fakeCompiler{name: "third"}
	rules := []config.RuleConfig{
		{Pattern: `.*\.dat`, Compiler: "first"},
		{Pattern: `(.*)\.dat`, Compiler: "second", Outputs: []string{"$1.out"}},
		{Pattern: `.*`, Compiler: "third", Outputs: []string{"all.out"}},
	}
	d, _ := newTestDriver(t, rules, first, second, third)

	res := d.Build(context.Background(), "x.dat")
	if res.Status != StatusOK || res.Compiler != "second" {
		t.Errorf("expected second compiler to build x.dat, got %+v", res)
	}
	if len(first.calls) != 0 || len(third.calls) != 0 {
		t.Error("expected only the second compiler to run")
	}
}

func TestBuildEntriesOrder(t *testing.T) {
	fc := &fakeCompiler{name: "fake"}
	rules := []config.RuleConfig{{Pattern: `(.*)`, Compiler: "fake", Outputs: []string{"$1.bin"}}}
	d, _ := newTestDriver(t, rules, fc)

	var entries []string
	for _, c := range "abcdefghijklmnop" {
		entries = append(entries, string(c))
	}
	results := d.BuildEntries(context.Background(), "m", entries)
	for i, r := range results {
		if r.Entry != entries[i] || r.Status != StatusOK {
			t.Errorf("result %d: expected %s OK, got %s %s", i, entries[i], r.Entry, r.Status)
		}
	}
}

func TestRunCanceled(t *testing.T) {
	fc := &fakeCompiler{name: "fake"}
	rules := []config.RuleConfig{{Pattern: `(.*)\.src`, Compiler: "fake", Outputs: []string{"$1.bin"}}}
	d, dir := newTestDriver(t, rules, fc)
	manifest := writeManifest(t, dir, "a.src\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := d.Run(ctx, []string{manifest, manifest})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 1 || results[0].Status != StatusFailed {
		t.Errorf("expected one failed result, got %+v", results)
	}
	if len(fc.calls) != 0 {
		t.Error("expected no compile calls after cancellation")
	}
}

func TestStatusString(t *testing.T) {
	if StatusOK.String() != "OK" || StatusFailed.String() != "FAIL" || StatusSkipped.String() != "SKIP" {
		t.Error("unexpected status names")
	}
	if Status(9).String() != "Status(9)" {
		t.Errorf("unexpected unknown status name %q", Status(9).String())
	}
}

func TestDefaultRegistry(t *testing.T) {
	cfg := config.Default()
	reg := DefaultRegistry(cfg)

	want := []string{config.CompilerMesh, config.CompilerShaderMetal, config.CompilerShaderWGSL, config.CompilerTexture}
	slices.Sort(want)
	if !slices.Equal(reg.Names(), want) {
		t.Errorf("expected compilers %v, got %v", want, reg.Names())
	}
	if _, err := New(cfg, reg); err != nil {
		t.Errorf("expected default rules to resolve, got %v", err)
	}
}

func TestMetalToolchainOverride(t *testing.T) {
	tc := metalToolchain(config.ExecToolchainConfig{
		Link: config.CommandConfig{Path: "/opt/bin/metallib", Args: []string{"-o", "{output}", "{input}"}},
	})
	if tc.Compile.Path != "xcrun" || tc.Archive.Path != "xcrun" {
		t.Errorf("expected unset stages to keep xcrun, got %s %s", tc.Compile.Path, tc.Archive.Path)
	}
	if tc.Link.Path != "/opt/bin/metallib" || len(tc.Link.Args) != 3 {
		t.Errorf("unexpected link command %+v", tc.Link)
	}
}
