package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-rt/engine/assets"
	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/platform"
	"github.com/spaghettifunk/anima-rt/engine/renderer/bindless"
	"github.com/spaghettifunk/anima-rt/engine/renderer/components"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/raytracing"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
	"github.com/spaghettifunk/anima-rt/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-rt/engine/scene"
	"github.com/spaghettifunk/anima-rt/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every resource
	EngineStageShutdown
)

// metricsLogInterval is the running time, in seconds, between two metrics log lines.
const metricsLogInterval float64 = 1.0

type Engine struct {
	cfg          *config.Config
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool

	platform  *platform.Platform
	ctx       *gpu.Context
	table     *bindless.Table
	scene     *scene.Scene
	camera    *components.Camera
	assembler *raytracing.Assembler
	watcher   *assets.TextureWatcher
	jobs      *systems.JobSystem

	clock      *core.Clock
	metrics    *core.Metrics
	lastTime   float64
	frameCount uint64
}

/**
 * @brief Boots the engine: picks the device backend, creates the GPU context
 * and the bindless table. Initialize must be called before Run.
 */
func New(cfg *config.Config, g *Game) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if g == nil {
		g = &Game{}
	}

	e := &Engine{
		cfg:          cfg,
		currentStage: EngineStageBooting,
		gameInstance: g,
		scene:        scene.New(),
		camera:       components.NewCamera(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}

	device, err := e.createDevice()
	if err != nil {
		e.release()
		return nil, err
	}
	e.ctx, err = gpu.NewContext(device)
	if err != nil {
		device.Destroy()
		e.release()
		return nil, err
	}

	capacity := cfg.Bindless.Capacity
	if limit := e.ctx.Features().MaxBindlessTextures; limit > 0 && capacity > limit {
		core.LogWarn("bindless capacity %d exceeds the device limit, clamping to %d", capacity, limit)
		capacity = limit
	}
	e.table, err = bindless.NewTable(e.ctx, capacity)
	if err != nil {
		e.release()
		return nil, err
	}

	if cfg.Assets.Watch {
		e.jobs, err = systems.NewJobSystem(runtime.NumCPU(), 64)
		if err != nil {
			e.release()
			return nil, err
		}
		e.watcher, err = assets.NewTextureWatcher(e.ctx, e.table, assets.DefaultTextureOptions(), e.jobs)
		if err != nil {
			e.release()
			return nil, err
		}
	}

	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) createDevice() (gpu.Device, error) {
	switch e.cfg.Renderer.Backend {
	case config.BackendSoftware:
		return software.New(software.Options{
			DisableRayTracing: !e.cfg.RayTracing.Enabled,
		}), nil
	case config.BackendVulkan:
		p, err := platform.New()
		if err != nil {
			return nil, err
		}
		if err := p.Startup(e.cfg.Application.Name, e.cfg.Application.Width, e.cfg.Application.Height, true); err != nil {
			return nil, err
		}
		e.platform = p
		return vulkan.New(vulkan.Options{
			ApplicationName: e.cfg.Application.Name,
			Extensions:      p.GetRequiredExtensionNames(),
			Debug:           e.cfg.Logging.Level == "debug",
		})
	default:
		return nil, fmt.Errorf("unknown renderer backend %q", e.cfg.Renderer.Backend)
	}
}

/**
 * @brief Runs the game's initialize hook, then packs every scene mesh and
 * builds the bottom-level structures. When ray tracing is disabled or the
 * device cannot build acceleration structures the engine keeps running
 * without an assembler.
 */
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("engine cannot initialize from stage %d", e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			core.LogError("game initialization failed: %s", err)
			return err
		}
	}

	if !e.cfg.RayTracing.Enabled {
		core.LogInfo("Ray tracing disabled by configuration.")
	} else {
		a, err := raytracing.New(e.ctx, e.scene, raytracing.Options{
			MaxVertices: e.cfg.Arena.MaxVertices,
			MaxIndices:  e.cfg.Arena.MaxIndices,
			Refit:       e.cfg.RayTracing.Refit,
		})
		switch {
		case errors.Is(err, core.ErrAccelerationUnsupported):
			core.LogWarn("Device '%s' cannot build acceleration structures, continuing without ray tracing.", e.ctx.Device.Name())
		case err != nil:
			return err
		default:
			e.assembler = a
		}
	}

	// Descriptors written during initialization become visible before the first frame.
	if err := e.table.UpdateSets(); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run from stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var runningTime float64 = 0.0

	for e.isRunning.Load() {
		if e.platform != nil {
			e.platform.PumpMessages()
			if e.platform.ShouldClose() {
				e.isRunning.Store(false)
				break
			}
		}

		// Update clock and get delta time.
		e.clock.Update()
		var currentTime float64 = e.clock.Elapsed()
		var delta float64 = (currentTime - e.lastTime)
		frameStartTime := time.Now()

		if err := e.frame(delta); err != nil {
			core.LogError("frame %d failed, shutting down: %s", e.frameCount, err)
			e.isRunning.Store(false)
			return err
		}

		frameElapsedTime := time.Since(frameStartTime).Seconds()
		e.metrics.Update(frameElapsedTime)
		runningTime += frameElapsedTime
		if runningTime >= metricsLogInterval {
			runningTime = 0
			fps, ms := e.metrics.Frame()
			core.LogInfo("FPS: %.0f, frame: %.3fms, tlas build: %.3fms (avg %.3fms), instances: %d",
				fps, ms, e.metrics.LastBuildMS, e.metrics.BuildMSavg, e.InstanceCount())
		}

		e.frameCount++
		if frames := e.cfg.Application.Frames; frames > 0 && e.frameCount >= frames {
			e.isRunning.Store(false)
		}

		// Update last time
		e.lastTime = currentTime
	}

	if path := e.cfg.Application.Preview; path != "" {
		if err := e.SavePreview(path); err != nil {
			core.LogWarn("preview not written: %s", err)
		}
	}
	return nil
}

/**
 * @brief One frame: apply texture reloads, let the game move things, pick up
 * new meshes, rebuild the top-level structure from the new transforms, then
 * flush the queued descriptor writes.
 */
func (e *Engine) frame(delta float64) error {
	if e.watcher != nil {
		if n, err := e.watcher.Poll(); err != nil {
			core.LogWarn("texture reload failed: %s", err)
		} else if n > 0 {
			core.LogDebug("%d textures reloaded", n)
		}
	}

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(e, delta); err != nil {
			return err
		}
	}

	if e.assembler != nil {
		start := time.Now()
		// meshes the game added this frame get packed and their BLAS built
		if err := e.assembler.Refresh(); err != nil {
			return err
		}
		if err := e.assembler.Update(); err != nil {
			return err
		}
		e.metrics.RecordBuild(time.Since(start))
	}

	return e.table.UpdateSets()
}

// Stop asks the frame loop to exit after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var err error
	if e.gameInstance.FnShutdown != nil {
		err = e.gameInstance.FnShutdown(e)
	}
	err = errors.Join(err, e.release())

	e.currentStage = EngineStageShutdown
	return err
}

// release destroys everything New and Initialize created, in reverse order.
func (e *Engine) release() error {
	var err error
	if e.watcher != nil {
		err = e.watcher.Close()
		e.watcher = nil
	}
	if e.jobs != nil {
		err = errors.Join(err, e.jobs.Shutdown())
		e.jobs = nil
	}
	if e.ctx != nil && e.ctx.Device != nil {
		if werr := e.ctx.Device.WaitIdle(); werr != nil {
			core.LogWarn("device failed to idle before shutdown: %s", werr)
		}
	}
	if e.assembler != nil {
		e.assembler.Destroy()
		e.assembler = nil
	}
	if e.table != nil {
		e.table.Destroy()
		e.table = nil
	}
	if e.ctx != nil {
		e.ctx.Destroy()
		e.ctx = nil
	}
	if e.platform != nil {
		err = errors.Join(err, e.platform.Shutdown())
		e.platform = nil
	}
	return err
}

/**
 * @brief Loads a texture file into the bindless table and returns its slot.
 * Relative paths resolve against the configured textures directory. With
 * watching enabled the slot is refreshed whenever the file changes.
 */
func (e *Engine) LoadTexture(path string) (uint32, error) {
	if !filepath.IsAbs(path) && e.cfg.Assets.TexturesDir != "" {
		path = filepath.Join(e.cfg.Assets.TexturesDir, path)
	}
	if e.watcher != nil {
		return e.watcher.LoadAndWatch(path)
	}

	tex, err := assets.LoadTexture(e.ctx, path, assets.DefaultTextureOptions())
	if err != nil {
		return 0, err
	}
	defer tex.Release()
	return e.table.AddTexture(tex)
}

func (e *Engine) Stage() Stage                     { return e.currentStage }
func (e *Engine) Config() *config.Config           { return e.cfg }
func (e *Engine) Context() *gpu.Context            { return e.ctx }
func (e *Engine) Scene() *scene.Scene              { return e.scene }
func (e *Engine) Camera() *components.Camera       { return e.camera }
func (e *Engine) Bindless() *bindless.Table        { return e.table }
func (e *Engine) Assembler() *raytracing.Assembler { return e.assembler }
func (e *Engine) Watcher() *assets.TextureWatcher  { return e.watcher }
func (e *Engine) Metrics() *core.Metrics           { return e.metrics }
func (e *Engine) FrameCount() uint64               { return e.frameCount }
func (e *Engine) RayTracingEnabled() bool          { return e.assembler != nil }

func (e *Engine) InstanceCount() int {
	if e.assembler == nil {
		return 0
	}
	return e.assembler.InstanceCount()
}
