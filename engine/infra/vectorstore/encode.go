package vectorstore

import (
	"encoding/binary"
	"math"
)

// EncodeVector serializes a dense vector to the little-endian FLOAT32 blob
// format Redis vector indexes expect.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
