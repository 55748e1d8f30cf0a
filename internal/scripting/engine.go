package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/EvilPatrick06/DnD-sub018/internal/lighting"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM holding the illumination formulas.
// Single-goroutine access only (session loop).
type Engine struct {
	vm       *lua.LState
	log      *zap.Logger
	fallback lighting.StepFalloff
}

// NewEngine creates a Lua engine and loads the core and lighting scripts from
// scriptsDir. dimIntensity is exposed to scripts as DIM_INTENSITY and used by
// the Go fallback when a script call fails.
func NewEngine(scriptsDir string, dimIntensity float64, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("DIM_INTENSITY", lua.LNumber(dimIntensity))

	e := &Engine{vm: vm, log: log, fallback: lighting.StepFalloff{DimIntensity: dimIntensity}}

	// Core helpers first; lighting scripts may call them.
	for _, sub := range []string{"core", "lighting"} {
		if err := e.loadDir(filepath.Join(scriptsDir, sub)); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Intensity calls the Lua light_intensity function with a context table
// {distance, bright_radius, radius}. Missing functions, script errors and
// non-numeric results fall back to the step falloff.
func (e *Engine) Intensity(distance, brightRadius, radius float64) float64 {
	fn := e.vm.GetGlobal("light_intensity")
	if fn == lua.LNil {
		return e.fallback.Intensity(distance, brightRadius, radius)
	}

	ctx := e.vm.NewTable()
	ctx.RawSetString("distance", lua.LNumber(distance))
	ctx.RawSetString("bright_radius", lua.LNumber(brightRadius))
	ctx.RawSetString("radius", lua.LNumber(radius))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, ctx); err != nil {
		e.log.Error("lua light_intensity error", zap.Error(err))
		return e.fallback.Intensity(distance, brightRadius, radius)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		e.log.Error("lua light_intensity returned non-number", zap.String("type", result.Type().String()))
		return e.fallback.Intensity(distance, brightRadius, radius)
	}
	return float64(n)
}

// Bands reads the illumination thresholds from the Lua illumination_bands
// function, returning lighting.DefaultBands when unavailable or inconsistent.
func (e *Engine) Bands() lighting.Bands {
	fn := e.vm.GetGlobal("illumination_bands")
	if fn == lua.LNil {
		return lighting.DefaultBands
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}); err != nil {
		e.log.Error("lua illumination_bands error", zap.Error(err))
		return lighting.DefaultBands
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua illumination_bands returned non-table")
		return lighting.DefaultBands
	}
	b := lighting.Bands{Dim: lNum(rt, "dim"), Bright: lNum(rt, "bright")}
	if b.Dim <= 0 || b.Bright < b.Dim || b.Bright > 1 {
		e.log.Warn("lua illumination_bands out of range, using defaults",
			zap.Float64("dim", b.Dim), zap.Float64("bright", b.Bright))
		return lighting.DefaultBands
	}
	return b
}

// lNum reads a number field from a Lua table.
func lNum(t *lua.LTable, key string) float64 {
	return float64(lua.LVAsNumber(t.RawGetString(key)))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
