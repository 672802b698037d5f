package gpu

import "encoding/binary"

/** @brief Size in bytes of one encoded top-level instance record. */
const AccelInstanceSize = 64

const (
	InstanceFlagTriangleCullDisable uint8 = 1 << iota
	InstanceFlagTriangleFrontCounterClockwise
	InstanceFlagForceOpaque
	InstanceFlagForceNoOpaque
)

/**
 * @brief One instance of a bottom-level structure in a top-level build.
 * The encoded layout is the one Vulkan reads: a row-major 3x4 transform, a
 * 24 bit custom index with an 8 bit mask, a 24 bit binding-table offset with
 * 8 bits of flags, and the BLAS address.
 */
type AccelInstance struct {
	Transform   [12]float32
	CustomIndex uint32
	Mask        uint8
	SBTOffset   uint32
	Flags       uint8
	BLASAddress DeviceAddress
}

// Encode writes the instance into dst, which must hold AccelInstanceSize bytes.
func (i AccelInstance) Encode(dst []byte) {
	_ = dst[AccelInstanceSize-1]
	for k, f := range i.Transform {
		binary.LittleEndian.PutUint32(dst[k*4:], float32bits(f))
	}
	binary.LittleEndian.PutUint32(dst[48:], i.CustomIndex&0xFFFFFF|uint32(i.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], i.SBTOffset&0xFFFFFF|uint32(i.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], uint64(i.BLASAddress))
}

func DecodeAccelInstance(src []byte) AccelInstance {
	_ = src[AccelInstanceSize-1]
	var i AccelInstance
	for k := range i.Transform {
		i.Transform[k] = float32frombits(binary.LittleEndian.Uint32(src[k*4:]))
	}
	w := binary.LittleEndian.Uint32(src[48:])
	i.CustomIndex = w & 0xFFFFFF
	i.Mask = uint8(w >> 24)
	w = binary.LittleEndian.Uint32(src[52:])
	i.SBTOffset = w & 0xFFFFFF
	i.Flags = uint8(w >> 24)
	i.BLASAddress = DeviceAddress(binary.LittleEndian.Uint64(src[56:]))
	return i
}
