package driver

import (
	"sort"
	"sync"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/internal/compiler/mesh"
	"github.com/Faultbox/midgard-assets/internal/compiler/shader"
	"github.com/Faultbox/midgard-assets/internal/compiler/texture"
	"github.com/Faultbox/midgard-assets/internal/config"
)

// Registry holds compilers by name.
type Registry struct {
	compilers map[string]compiler.Compiler
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		compilers: make(map[string]compiler.Compiler),
	}
}

// Register adds c under its name, replacing any compiler already there.
func (r *Registry) Register(c compiler.Compiler) {
	r.mu.Lock()
	r.compilers[c.Name()] = c
	r.mu.Unlock()
}

// Get returns the compiler registered as name.
func (r *Registry) Get(name string) (compiler.Compiler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.compilers[name]
	return c, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.compilers))
	for name := range r.compilers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the built-in compilers configured from cfg.
func DefaultRegistry(cfg *config.Config) *Registry {
	shaderOpts := []shader.Option{
		shader.WithJobs(cfg.Build.ShaderJobs),
		shader.WithScratchDir(cfg.Build.ScratchDir),
	}

	var textureOpts []texture.Option
	if cfg.Texture.Compress {
		textureOpts = append(textureOpts, texture.WithCompression(cfg.Texture.Level))
	}
	textureOpts = append(textureOpts, texture.WithMaxSize(cfg.Texture.MaxSize))

	r := NewRegistry()
	r.Register(mesh.New())
	r.Register(shader.New(config.CompilerShaderMetal, metalToolchain(cfg.Toolchain.Metal), shaderOpts...))
	r.Register(shader.New(config.CompilerShaderWGSL, shader.NagaToolchain{}, shaderOpts...))
	r.Register(texture.New(textureOpts...))
	return r
}

// metalToolchain applies configured command overrides to the built-in
// Metal toolchain.
func metalToolchain(cfg config.ExecToolchainConfig) *shader.ExecToolchain {
	tc := shader.MetalToolchain()
	override(&tc.Compile, cfg.Compile)
	override(&tc.Archive, cfg.Archive)
	override(&tc.Link, cfg.Link)
	return tc
}

func override(cmd *shader.Command, cfg config.CommandConfig) {
	if cfg.Path == "" {
		return
	}
	cmd.Path = cfg.Path
	cmd.Args = cfg.Args
}
