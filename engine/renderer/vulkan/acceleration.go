package vulkan

import (
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

/**
 * @brief Not supported: the backend reports RayTracing=false and every build
 * fails with core.ErrAccelerationUnsupported.
 * TODO: build through VK_KHR_acceleration_structure once the bindings expose the KHR entry points.
 */
func (b *Backend) BuildBottomLevel(desc gpu.BottomLevelDesc) (gpu.AccelHandle, error) {
	core.LogError("bottom-level build '%s': %s", desc.Label, core.ErrAccelerationUnsupported)
	return 0, core.ErrAccelerationUnsupported
}

/**
 * @brief Not supported: the backend reports RayTracing=false and every build
 * fails with core.ErrAccelerationUnsupported.
 */
func (b *Backend) BuildTopLevel(desc gpu.TopLevelDesc) (gpu.AccelHandle, error) {
	core.LogError("top-level build '%s': %s", desc.Label, core.ErrAccelerationUnsupported)
	return 0, core.ErrAccelerationUnsupported
}

func (b *Backend) DestroyAccel(h gpu.AccelHandle) {}

func (b *Backend) AccelAddress(h gpu.AccelHandle) gpu.DeviceAddress { return 0 }

var _ gpu.Device = (*Backend)(nil)
