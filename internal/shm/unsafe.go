package shm

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// unsafePointerAt returns &data[offset] as an unsafe.Pointer so the caller
// can reinterpret it as an atomic counter living inside the mapped region.
func unsafePointerAt(data []byte, offset int) unsafe.Pointer {
	return unsafe.Pointer(&data[offset])
}

// putFloat32 writes v as little-endian IEEE-754 bits at data[offset:offset+4].
func putFloat32(data []byte, offset int, v float32) {
	binary.LittleEndian.PutUint32(data[offset:offset+4], math.Float32bits(v))
}
