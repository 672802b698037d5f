package testbed

import (
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

func nonZero(name string, v float32) float32 {
	if v == 0 {
		core.LogWarn("%s must be nonzero. Defaulting to one.", name)
		return 1.0
	}
	return v
}

/**
 * @brief Generates a plane in the XY plane facing +Z, split into
 * xSegmentCount * ySegmentCount quads with 4 vertices each.
 * @param tileX The number of times the texture should tile across the plane on the x-axis.
 * @param tileY The number of times the texture should tile across the plane on the y-axis.
 */
func GeneratePlane(width, height float32, xSegmentCount, ySegmentCount uint32, tileX, tileY float32, name string) *metadata.Mesh {
	width = nonZero("width", width)
	height = nonZero("height", height)
	tileX = nonZero("tileX", tileX)
	tileY = nonZero("tileY", tileY)
	if xSegmentCount < 1 {
		core.LogWarn("xSegmentCount must be a positive number. Defaulting to one.")
		xSegmentCount = 1
	}
	if ySegmentCount < 1 {
		core.LogWarn("ySegmentCount must be a positive number. Defaulting to one.")
		ySegmentCount = 1
	}

	vertices := make([]math.Vertex3D, xSegmentCount*ySegmentCount*4)
	indices := make([]uint32, 0, xSegmentCount*ySegmentCount*6)

	segWidth := width / float32(xSegmentCount)
	segHeight := height / float32(ySegmentCount)
	for y := uint32(0); y < ySegmentCount; y++ {
		for x := uint32(0); x < xSegmentCount; x++ {
			minX := float32(x)*segWidth - width*0.5
			minY := float32(y)*segHeight - height*0.5
			minU := float32(x) / float32(xSegmentCount) * tileX
			minV := float32(y) / float32(ySegmentCount) * tileY
			maxU := float32(x+1) / float32(xSegmentCount) * tileX
			maxV := float32(y+1) / float32(ySegmentCount) * tileY

			offset := (y*xSegmentCount + x) * 4
			quad := vertices[offset : offset+4]
			quad[0].Position, quad[0].Texcoord = math.NewVec3(minX, minY, 0), math.NewVec2(minU, minV)
			quad[1].Position, quad[1].Texcoord = math.NewVec3(minX+segWidth, minY+segHeight, 0), math.NewVec2(maxU, maxV)
			quad[2].Position, quad[2].Texcoord = math.NewVec3(minX, minY+segHeight, 0), math.NewVec2(minU, maxV)
			quad[3].Position, quad[3].Texcoord = math.NewVec3(minX+segWidth, minY, 0), math.NewVec2(maxU, minV)

			indices = append(indices, offset, offset+1, offset+2, offset, offset+3, offset+1)
		}
	}

	mesh := metadata.NewMesh(name, vertices, indices)
	math.GeometryGenerateNormals(mesh.Vertices, mesh.Indices)
	return mesh
}

// cubeFaces lists, per face, the outward normal and the two in-plane axes (u, v).
// Order: front, back, left, right, bottom, top.
var cubeFaces = [6][3]math.Vec3{
	{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
	{{X: 0, Y: 0, Z: -1}, {X: -1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
	{{X: -1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 0}},
	{{X: 1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: -1}, {X: 0, Y: 1, Z: 0}},
	{{X: 0, Y: -1, Z: 0}, {X: -1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: -1}},
	{{X: 0, Y: 1, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: -1}},
}

/**
 * @brief Generates an axis-aligned box centered on the origin, 4 vertices and
 * 2 triangles per face, wound counter-clockwise seen from outside.
 */
func GenerateCube(width, height, depth, tileX, tileY float32, name string) *metadata.Mesh {
	half := math.NewVec3(nonZero("width", width), nonZero("height", height), nonZero("depth", depth)).MulScalar(0.5)
	tileX = nonZero("tileX", tileX)
	tileY = nonZero("tileY", tileY)

	vertices := make([]math.Vertex3D, 0, 4*6)
	indices := make([]uint32, 0, 6*6)
	corners := [4][2]float32{{-1, -1}, {1, 1}, {-1, 1}, {1, -1}}
	for _, face := range cubeFaces {
		normal, u, v := face[0], face[1], face[2]
		offset := uint32(len(vertices))
		for _, c := range corners {
			p := normal.Add(u.MulScalar(c[0])).Add(v.MulScalar(c[1])).Mul(half)
			vertices = append(vertices, math.Vertex3D{
				Position: p,
				Normal:   normal,
				Texcoord: math.NewVec2((c[0]+1)*0.5*tileX, (c[1]+1)*0.5*tileY),
				Colour:   math.NewVec4One(),
			})
		}
		indices = append(indices, offset, offset+1, offset+2, offset, offset+3, offset+1)
	}
	return metadata.NewMesh(name, vertices, indices)
}
