package audio

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Границы речевой полосы, Гц.
const (
	speechBandLow  = 300.0
	speechBandHigh = 3400.0
)

// Detector решает, есть ли речь во фрейме: громкость выше порога
// и основная часть энергии спектра лежит в речевой полосе.
type Detector struct {
	SampleRate   int
	Threshold    float64
	MinBandRatio float64
}

func NewDetector(sampleRate int, threshold float64) *Detector {
	return &Detector{SampleRate: sampleRate, Threshold: threshold, MinBandRatio: 0.5}
}

// Analyze возвращает RMS фрейма и долю энергии в речевой полосе.
func (d *Detector) Analyze(frame []int16) (rms, bandRatio float64) {
	if len(frame) == 0 {
		return 0, 0
	}
	x := make([]float64, len(frame))
	var sum float64
	for i, s := range frame {
		v := float64(s)
		x[i] = v
		sum += v * v
	}
	rms = math.Sqrt(sum / float64(len(frame)))

	window.Apply(x, window.Hann)
	spectrum := fft.FFTReal(x)
	binHz := float64(d.SampleRate) / float64(len(x))
	var total, band float64
	for i := 1; i <= len(spectrum)/2; i++ {
		p := cmplx.Abs(spectrum[i])
		p *= p
		total += p
		if f := float64(i) * binHz; f >= speechBandLow && f <= speechBandHigh {
			band += p
		}
	}
	if total == 0 {
		return rms, 0
	}
	return rms, band / total
}

func (d *Detector) IsSpeech(frame []int16) bool {
	rms, ratio := d.Analyze(frame)
	return rms >= d.Threshold && ratio >= d.MinBandRatio
}
