package audioio

import "math"

// Resample converts mono audio from one sample rate to another using
// linear interpolation. Good enough for speech.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		return []int16{}
	}

	out := make([]int16, newLen)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		s1 := float64(samples[idx])
		s2 := float64(samples[idx+1])
		out[i] = int16(s1 + frac*(s2-s1))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}

// MonoToStereo duplicates mono samples to stereo.
func MonoToStereo(samples []int16) []int16 {
	stereo := make([]int16, len(samples)*2)
	for i, s := range samples {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}
	return stereo
}

// Convert returns c as mono PCM16 at sampleRate.
func Convert(c AudioChunk, sampleRate int) AudioChunk {
	mono := Downmix(c.Samples, c.Channels)
	return AudioChunk{
		Samples:    Resample(mono, c.SampleRate, sampleRate),
		SampleRate: sampleRate,
		Channels:   1,
	}
}

// ConvertTo adapts c to the rate and channel count of cfg.
func ConvertTo(c AudioChunk, cfg Config) AudioChunk {
	out := Convert(c, cfg.SampleRate)
	if cfg.Channels == 2 {
		out.Samples = MonoToStereo(out.Samples)
		out.Channels = 2
	}
	return out
}

// BytesToSamples converts little-endian PCM16 bytes to samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts samples to little-endian PCM16 bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// RMS returns the root mean square amplitude of samples, scaled to 0..1.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// levelFloorDB is the quietest level that still registers on a meter.
const levelFloorDB = -50.0

// Level maps the RMS of samples onto a 0..1 meter scale in decibels,
// with levelFloorDB at 0 and full scale at 1.
func Level(samples []int16) float64 {
	rms := RMS(samples)
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	level := (db - levelFloorDB) / -levelFloorDB
	return math.Max(0, math.Min(1, level))
}
