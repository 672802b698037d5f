package components

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

const tol = 1e-4

func TestCameraDefaultsLookDownNegativeZ(t *testing.T) {
	c := NewCamera()
	assert.True(t, c.Forward().Compare(math.NewVec3(0, 0, -1), tol))

	origin, dir := c.PrimaryRay(50, 50, 101, 101)
	assert.True(t, origin.Compare(math.NewVec3Zero(), tol))
	assert.True(t, dir.Compare(math.NewVec3(0, 0, -1), tol), "got %+v", dir)
}

func TestCameraPrimaryRayCorners(t *testing.T) {
	c := NewCamera()
	_, topLeft := c.PrimaryRay(0, 0, 64, 32)
	_, bottomRight := c.PrimaryRay(63, 31, 64, 32)

	assert.Less(t, topLeft.X, float32(0))
	assert.Greater(t, topLeft.Y, float32(0))
	assert.Greater(t, bottomRight.X, float32(0))
	assert.Less(t, bottomRight.Y, float32(0))
	assert.InDelta(t, 1, topLeft.Length(), tol)
}

func TestCameraPositionMovesRayOrigin(t *testing.T) {
	c := NewCamera()
	c.SetPosition(math.NewVec3(1, 2, 3))
	origin, _ := c.PrimaryRay(0, 0, 4, 4)
	assert.True(t, origin.Compare(math.NewVec3(1, 2, 3), tol))

	c.MoveForward(2)
	assert.True(t, c.Position().Compare(math.NewVec3(1, 2, 1), tol), "got %+v", c.Position())
	c.MoveRight(1)
	assert.True(t, c.Position().Compare(math.NewVec3(2, 2, 1), tol), "got %+v", c.Position())
}

func TestCameraLookAt(t *testing.T) {
	c := NewCamera()
	c.SetPosition(math.NewVec3(0, 0, 5))
	c.LookAt(math.NewVec3(5, 0, 5))
	assert.True(t, c.Forward().Compare(math.NewVec3(1, 0, 0), tol), "got %+v", c.Forward())

	c.LookAt(math.NewVec3(0, 5, 0))
	want := math.NewVec3(0, 5, -5).Normalized()
	assert.True(t, c.Forward().Compare(want, tol), "got %+v", c.Forward())
}

func TestCameraPitchIsClamped(t *testing.T) {
	c := NewCamera()
	c.Pitch(10)
	assert.InDelta(t, pitchLimit, c.EulerRotation().X, tol)
	c.Pitch(-20)
	assert.InDelta(t, -pitchLimit, c.EulerRotation().X, tol)
}

func TestCameraViewInvertsWorld(t *testing.T) {
	c := NewCamera()
	c.SetPosition(math.NewVec3(3, 1, -2))
	c.Yaw(0.7)
	view, ok := c.View()
	require.True(t, ok)

	p := c.Position().Transform(view)
	assert.True(t, p.Compare(math.NewVec3Zero(), tol), "got %+v", p)
}
