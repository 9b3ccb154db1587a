package audio

import "encoding/binary"

// Waveform is a fully reconstructed, playable signal. Samples are normalized
// to [-1, 1]; the zero value is an empty waveform.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

func (w Waveform) IsEmpty() bool {
	return len(w.Samples) == 0
}

// Duration returns the playback length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// DecodePCM16 interprets little-endian bytes as 16-bit signed samples. A
// trailing odd byte is dropped.
func DecodePCM16(data []byte) []int16 {
	samples := make([]int16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		samples = append(samples, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	return samples
}

// Normalize converts 16-bit samples to floats in [-1, 1].
func Normalize(samples []int16) []float32 {
	normalized := make([]float32, len(samples))
	for i, s := range samples {
		normalized[i] = float32(s) / 32768.0
	}
	return normalized
}

// EncodeS16LE converts normalized samples back into little-endian PCM16 bytes
// for playback devices. Out-of-range samples are clipped.
func EncodeS16LE(samples []float32) []byte {
	encoded := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767.0)
		binary.LittleEndian.PutUint16(encoded[i*2:], uint16(v))
	}
	return encoded
}

// BuildWaveform concatenates 16-bit chunks in the order given and normalizes
// the result. Chunk order must be arrival order; the caller never reorders.
func BuildWaveform(chunks [][]int16, sampleRate int) Waveform {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}

	merged := make([]int16, 0, total)
	for _, chunk := range chunks {
		merged = append(merged, chunk...)
	}

	return Waveform{Samples: Normalize(merged), SampleRate: sampleRate}
}
