package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DefaultSampleRate is the microphone capture rate assumed by the
// frequency charts.
const DefaultSampleRate = 44100.0

// maxFFTSize bounds the transform so oversized batches stay cheap to
// render.
const maxFFTSize = 1024

// Bin is one frequency-domain point of a spectrum.
type Bin struct {
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
}

// Spectrum computes the magnitude spectrum of a microphone batch: a
// Hamming window, a real FFT over at most maxFFTSize samples, and
// window-sum normalization. sampleRate defaults to DefaultSampleRate
// when non-positive.
func Spectrum(samples []float32, sampleRate float64) []Bin {
	if len(samples) == 0 {
		return []Bin{}
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := len(samples)
	if n > maxFFTSize {
		n = maxFFTSize
	}

	win := hamming(n)
	sumWin := 0.0
	windowed := make([]float64, n)
	for i := 0; i < n; i++ {
		windowed[i] = float64(samples[i]) * win[i]
		sumWin += win[i]
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, windowed)

	bins := make([]Bin, len(coeffs))
	for i, c := range coeffs {
		bins[i] = Bin{
			Frequency: fft.Freq(i) * sampleRate,
			Magnitude: cmplx.Abs(c) / sumWin,
		}
	}
	return bins
}

// hamming returns a Hamming window of length n.
func hamming(n int) []float64 {
	win := make([]float64, n)
	if n == 1 {
		win[0] = 1
		return win
	}
	for i := 0; i < n; i++ {
		win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}
