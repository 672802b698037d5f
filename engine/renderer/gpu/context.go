package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
)

/**
 * @brief Context carries the device every GPU component is built against.
 * It is passed by pointer to constructors; there is no global device.
 */
type Context struct {
	Device   Device
	features Features
}

func NewContext(device Device) (*Context, error) {
	if device == nil {
		err := fmt.Errorf("gpu context requires a device: %w", core.ErrInvalidHandle)
		core.LogError(err.Error())
		return nil, err
	}
	ctx := &Context{
		Device:   device,
		features: device.Features(),
	}
	core.LogInfo("GPU context created on '%s' (ray tracing: %t, bindless: %d textures)",
		device.Name(), ctx.features.RayTracing, ctx.features.MaxBindlessTextures)
	return ctx, nil
}

func (c *Context) Features() Features {
	return c.features
}

// Destroy waits for the device to go idle and destroys it. Every resource
// created from the context must already be destroyed.
func (c *Context) Destroy() {
	if c.Device == nil {
		return
	}
	if err := c.Device.WaitIdle(); err != nil {
		core.LogWarn("device failed to idle before shutdown: %s", err)
	}
	c.Device.Destroy()
	c.Device = nil
}
