package kernel

import (
	"context"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
)

// Config holds configuration for kernel compilation
type Config struct {
	// MemoryLimitPages caps the linear memory of the module in 64KB pages.
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// Kernel is an instantiated core WebAssembly module.
type Kernel struct {
	runtime wazero.Runtime
	module  api.Module
}

// Compile compiles and instantiates wasm. The module must not import
// anything.
func Compile(ctx context.Context, wasm []byte, cfg *Config) (*Kernel, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := runtime.CompileModule(ctx, wasm)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Instantiation(err)
	}
	module, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	k := &Kernel{runtime: runtime, module: module}
	Logger().Debug("kernel compiled",
		zap.Int("bytes", len(wasm)),
		zap.Strings("exports", k.Exports()))
	return k, nil
}

// Exports returns the names of the exported functions, sorted.
func (k *Kernel) Exports() []string {
	defs := k.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// function returns an export with signature (i64) -> i64.
func (k *Kernel) function(name string) (api.Function, error) {
	def, ok := k.module.ExportedFunctionDefinitions()[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseKernel, "export", name)
	}
	i64 := []api.ValueType{api.ValueTypeI64}
	if !slices.Equal(def.ParamTypes(), i64) || !slices.Equal(def.ResultTypes(), i64) {
		return nil, errors.New(errors.PhaseKernel, errors.KindInvalidInput).
			Path("export", name).
			Detail("signature must be (i64) -> i64").
			Build()
	}
	return k.module.ExportedFunction(name), nil
}

// Close releases the module and its runtime.
func (k *Kernel) Close(ctx context.Context) error {
	return k.runtime.Close(ctx)
}
