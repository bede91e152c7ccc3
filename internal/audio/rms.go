package audio

import (
	"encoding/binary"
	"math"
)

// maxSampleValue is the maximum absolute value for 16-bit signed audio.
const maxSampleValue = 32768.0

// ChunkRMS computes the root-mean-square energy of a PCM16LE chunk.
// Samples are normalized to [-1, 1] before squaring, so the result is
// in [0, 1] regardless of bit depth scaling. Returns 0 for chunks
// shorter than one sample.
func ChunkRMS(chunk []byte) float64 {
	var sumSquares float64
	var count int

	for i := 0; i+1 < len(chunk); i += 2 {
		sample := float64(int16(binary.LittleEndian.Uint16(chunk[i:]))) / maxSampleValue
		sumSquares += sample * sample
		count++
	}

	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSquares / float64(count))
}
