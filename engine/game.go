package engine

/**
 * @brief The hooks a game plugs into the engine. FnInitialize populates the
 * scene before the acceleration structures are first built; FnUpdate runs
 * once per frame before the top-level rebuild.
 */
type Game struct {
	Name         string
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnShutdown   Shutdown
}

type Initialize func(e *Engine) error
type Update func(e *Engine, deltaTime float64) error
type Shutdown func(e *Engine) error
