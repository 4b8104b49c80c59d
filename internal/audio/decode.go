// Package audio decodes microphone sample payloads from the telemetry
// stream and derives frequency-domain views for the dashboard charts.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeSamples converts a base64 payload of little-endian float32 values
// into a sample slice. This is the wire format of the micro_* batches.
func DecodeSamples(encoded string) ([]float32, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty sample payload")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode sample payload: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("sample payload length %d is not a multiple of 4", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// EncodeSamples is the inverse of DecodeSamples, used by simulators and
// tests to build wire payloads.
func EncodeSamples(samples []float32) string {
	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}
