// Package convert maps raw ESP32 ADC values to physical units. Every
// function is total: out-of-range inputs are clamped, never rejected, so
// the ingestion path has no failure mode here. The breakpoints below are
// load-bearing constants shared with the firmware and must not drift.
package convert

import "math"

const (
	// ADCMax is the full-scale 12-bit ADC count.
	ADCMax = 4095
	// VRef is the ADC reference voltage.
	VRef = 3.3
)

// RawToAQI scales a raw ADC count onto the 0-500 AQI range,
// floor(raw/4095*500), clamped to [0,500].
func RawToAQI(raw float64) int {
	aqi := int(math.Floor(raw / ADCMax * 500))
	if aqi < 0 {
		return 0
	}
	if aqi > 500 {
		return 500
	}
	return aqi
}

// MQ135RawToCO2 estimates CO2 ppm from a raw MQ135 ADC count using a
// piecewise-linear curve fitted against a calibrated reference:
//
//	raw <= 800:        [300,800]   -> [400,500] ppm
//	800 < raw <= 2000: [800,2000]  -> [500,800] ppm
//	raw > 2000:        [2000,4000] -> [800,1200] ppm
//
// The result is clamped to [350,1200] ppm.
func MQ135RawToCO2(raw float64) int {
	var ppm float64
	switch {
	case raw <= 800:
		ppm = 400 + (raw-300)*(500-400)/(800-300)
	case raw <= 2000:
		ppm = 500 + (raw-800)*(800-500)/(2000-800)
	default:
		ppm = 800 + (raw-2000)*(1200-800)/(4000-2000)
	}
	if ppm < 350 {
		ppm = 350
	}
	if ppm > 1200 {
		ppm = 1200
	}
	return int(ppm)
}

// VoltageFromRaw converts a raw ADC count to volts against the 3.3V
// reference.
func VoltageFromRaw(raw float64) float64 {
	return raw / ADCMax * VRef
}
