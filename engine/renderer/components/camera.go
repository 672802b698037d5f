package components

import (
	"github.com/chewxy/math32"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

/**
 * @brief A pinhole camera that produces primary rays for ray generation.
 * The world matrix is rebuilt lazily whenever position or rotation change.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the world matrix is recalculated when needed.
	 */
	position math.Vec3
	/** @brief The rotation of this camera using Euler angles (pitch, yaw, roll). */
	eulerRotation math.Vec3
	/** @brief Vertical field of view in radians. */
	fov float32
	/** @brief Internal flag used to determine when the world matrix needs to be rebuilt. */
	isDirty bool
	world   math.Mat4
}

/** @brief Default vertical field of view, 45 degrees. */
const DefaultCameraFOV float32 = 0.785398163

/** @brief Pitch limit, 89 degrees. */
const pitchLimit float32 = 1.55334306

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.eulerRotation = math.NewVec3Zero()
	c.position = math.NewVec3Zero()
	c.fov = DefaultCameraFOV
	c.isDirty = false
	c.world = math.NewMat4Identity()
}

func (c *Camera) Position() math.Vec3      { return c.position }
func (c *Camera) EulerRotation() math.Vec3 { return c.eulerRotation }
func (c *Camera) FOV() float32             { return c.fov }

func (c *Camera) SetPosition(position math.Vec3) {
	c.position = position
	c.isDirty = true
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.eulerRotation = rotation
	c.eulerRotation.X = math.Clamp(c.eulerRotation.X, -pitchLimit, pitchLimit)
	c.isDirty = true
}

func (c *Camera) SetFOV(fov float32) {
	c.fov = math.Clamp(fov, 0.01, math32.Pi-0.01)
}

/** @brief Camera-to-world matrix. The view matrix is its inverse. */
func (c *Camera) World() math.Mat4 {
	if c.isDirty {
		rotation := math.NewMat4EulerXYZ(c.eulerRotation.X, c.eulerRotation.Y, c.eulerRotation.Z)
		c.world = rotation.Mul(math.NewMat4Translation(c.position))
		c.isDirty = false
	}
	return c.world
}

func (c *Camera) View() (math.Mat4, bool) {
	return c.World().InverseAffine()
}

func (c *Camera) Forward() math.Vec3 { return c.World().Forward() }
func (c *Camera) Right() math.Vec3   { return c.World().Right() }
func (c *Camera) Up() math.Vec3      { return c.World().Up() }

func (c *Camera) move(direction math.Vec3, amount float32) {
	c.position = c.position.Add(direction.MulScalar(amount))
	c.isDirty = true
}

func (c *Camera) MoveForward(amount float32)  { c.move(c.Forward(), amount) }
func (c *Camera) MoveBackward(amount float32) { c.move(c.Forward(), -amount) }
func (c *Camera) MoveLeft(amount float32)     { c.move(c.Right(), -amount) }
func (c *Camera) MoveRight(amount float32)    { c.move(c.Right(), amount) }
func (c *Camera) MoveUp(amount float32)       { c.move(math.NewVec3Up(), amount) }
func (c *Camera) MoveDown(amount float32)     { c.move(math.NewVec3Up(), -amount) }

func (c *Camera) Yaw(amount float32) {
	c.eulerRotation.Y += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.eulerRotation.X += amount

	// Clamp to avoid Gimbal lock.
	c.eulerRotation.X = math.Clamp(c.eulerRotation.X, -pitchLimit, pitchLimit)
	c.isDirty = true
}

/** @brief Points the camera at target. Roll is reset. */
func (c *Camera) LookAt(target math.Vec3) {
	dir := target.Sub(c.position)
	if dir.LengthSquared() == 0 {
		return
	}
	dir = dir.Normalized()
	c.SetEulerRotation(math.NewVec3(
		math32.Asin(math.Clamp(dir.Y, -1, 1)),
		math32.Atan2(-dir.X, -dir.Z),
		0,
	))
}

/**
 * @brief Returns the origin and normalized world direction of the primary ray
 * through the center of pixel (x, y) of a width x height image. Pixel (0, 0)
 * is the top-left corner.
 */
func (c *Camera) PrimaryRay(x, y, width, height uint32) (math.Vec3, math.Vec3) {
	aspect := float32(width) / float32(height)
	scale := math32.Tan(c.fov * 0.5)

	u := (2*(float32(x)+0.5)/float32(width) - 1) * aspect * scale
	v := (1 - 2*(float32(y)+0.5)/float32(height)) * scale

	world := c.World()
	dir := math.NewVec3(u, v, -1).TransformDirection(world).Normalized()
	return world.Translation(), dir
}
