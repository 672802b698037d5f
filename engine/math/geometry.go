package math

// GeometryGenerateNormals writes a face normal into every vertex of each triangle.
func GeometryGenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0 := indices[i+0]
		i1 := indices[i+1]
		i2 := indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)

		// NOTE: This just generates a face normal. Smoothing out should be done in a separate pass if desired.
		normal := edge1.Cross(edge2).Normalized()
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GeometryExtents returns the bounds of the given vertex positions.
func GeometryExtents(vertices []Vertex3D) Extents3D {
	e := NewExtents3DEmpty()
	for i := range vertices {
		e = e.Grow(vertices[i].Position)
	}
	return e
}
