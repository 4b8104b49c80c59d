package audio

import (
	"math"
	"testing"
)

func TestDecodeSamplesRoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 1e-3}
	out, err := DecodeSamples(EncodeSamples(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func TestDecodeSamplesRejectsBadInput(t *testing.T) {
	if _, err := DecodeSamples(""); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if _, err := DecodeSamples("!!!not-base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	// "AAA" decodes to 2 raw bytes, which is not a whole float32.
	if _, err := DecodeSamples("AAA="); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestSpectrumFindsDominantTone(t *testing.T) {
	const (
		rate = 1024.0
		n    = 1024
		tone = 128.0
	)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * tone * float64(i) / rate))
	}

	bins := Spectrum(samples, rate)
	if len(bins) != n/2+1 {
		t.Fatalf("expected %d bins, got %d", n/2+1, len(bins))
	}

	peak := 0
	for i, b := range bins {
		if b.Magnitude > bins[peak].Magnitude {
			peak = i
		}
	}
	if got := bins[peak].Frequency; math.Abs(got-tone) > rate/float64(n) {
		t.Fatalf("expected peak near %v Hz, got %v Hz", tone, got)
	}
}

func TestSpectrumEmptyInput(t *testing.T) {
	if bins := Spectrum(nil, 0); len(bins) != 0 {
		t.Fatalf("expected no bins for empty input, got %d", len(bins))
	}
}

func TestSpectrumCapsOversizedBatches(t *testing.T) {
	samples := make([]float32, maxFFTSize*4)
	bins := Spectrum(samples, DefaultSampleRate)
	if len(bins) != maxFFTSize/2+1 {
		t.Fatalf("expected transform capped at %d samples, got %d bins", maxFFTSize, len(bins))
	}
}
