package audio

import "github.com/oov/audio/resampler"

const resampleQuality = 10

// downmixInterleaved averages interleaved channels into a new mono slice.
func downmixInterleaved(input []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels <= 1 {
		copy(out, input[:frames])
		return out
	}

	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += input[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// converter turns interleaved device frames into mono frames at the target rate.
type converter struct {
	channels  int
	inRate    int
	outRate   int
	resampler *resampler.Resampler
	scratch   []float32
}

func newConverter(channels, inRate, outRate int) *converter {
	c := &converter{
		channels: max(channels, 1),
		inRate:   inRate,
		outRate:  outRate,
	}
	if inRate != outRate {
		c.resampler = resampler.New(1, inRate, outRate, resampleQuality)
	}
	return c
}

// passthrough reports whether convert would return its input unchanged.
func (c *converter) passthrough() bool {
	return c.channels == 1 && c.resampler == nil
}

func (c *converter) convert(input []float32) []float32 {
	frames := len(input) / c.channels
	mono := downmixInterleaved(input, c.channels, frames)
	if c.resampler == nil {
		return mono
	}

	need := frames*c.outRate/c.inRate + 64
	if cap(c.scratch) < need {
		c.scratch = make([]float32, need)
	}
	_, written := c.resampler.ProcessFloat32(0, mono, c.scratch[:need])

	out := make([]float32, written)
	copy(out, c.scratch[:written])
	return out
}
