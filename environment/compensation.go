package environment

import "fmt"

const bme280RawLen = 8

// Raw is one burst of uncompensated ADC counts.
type Raw struct {
	Pressure    int32
	Temperature int32
	Humidity    int32
}

// ParseRaw decodes the 8 byte burst read from 0xF7: 20 bit pressure, 20 bit
// temperature, 16 bit humidity, all big-endian.
func ParseRaw(b []byte) (Raw, error) {
	if len(b) < bme280RawLen {
		return Raw{}, fmt.Errorf("bme280: short measurement burst (%d bytes)", len(b))
	}
	return Raw{
		Pressure:    int32(b[0])<<12 | int32(b[1])<<4 | int32(b[2]>>4),
		Temperature: int32(b[3])<<12 | int32(b[4])<<4 | int32(b[5]>>4),
		Humidity:    int32(b[6])<<8 | int32(b[7]),
	}, nil
}

// Measurement is a compensated reading in °C, %RH and hPa.
type Measurement struct {
	Temperature float32
	Humidity    float32
	Pressure    float32
}

// Compensate applies the Bosch integer compensation formulas to raw.
func (c Calibration) Compensate(raw Raw) Measurement {
	tFine := c.FineTemperature(raw.Temperature)
	return Measurement{
		Temperature: Temperature(tFine),
		Humidity:    c.Humidity(tFine, raw.Humidity),
		Pressure:    c.Pressure(tFine, raw.Pressure),
	}
}

// FineTemperature returns the t_fine value shared by all three formulas.
func (c Calibration) FineTemperature(adcT int32) int32 {
	t1 := int32(c.T1)
	var1 := (((adcT >> 3) - (t1 << 1)) * int32(c.T2)) >> 11
	d := (adcT >> 4) - t1
	var2 := (((d * d) >> 12) * int32(c.T3)) >> 14
	return var1 + var2
}

// Temperature converts t_fine to °C with 0.01 resolution.
func Temperature(tFine int32) float32 {
	return float32((tFine*5+128)>>8) / 100
}

// Pressure returns hPa using 64 bit arithmetic. A zero divisor yields 0.
func (c Calibration) Pressure(tFine, adcP int32) float32 {
	var1 := int64(tFine) - 128000
	var2 := var1 * var1 * int64(c.P6)
	var2 += (var1 * int64(c.P5)) << 17
	var2 += int64(c.P4) << 35
	var1 = ((var1 * var1 * int64(c.P3)) >> 8) + ((var1 * int64(c.P2)) << 12)
	var1 = (((int64(1) << 47) + var1) * int64(c.P1)) >> 33
	if var1 == 0 {
		return 0
	}
	p := int64(1048576 - adcP)
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (int64(c.P9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(c.P8) * p) >> 19
	p = ((p + var1 + var2) >> 8) + (int64(c.P7) << 4)
	// p is Pa in Q24.8
	return float32(p) / 25600
}

// Humidity returns %RH using 32 bit arithmetic, clamped to 0..100.
func (c Calibration) Humidity(tFine, adcH int32) float32 {
	v := tFine - 76800
	a := ((adcH << 14) - (int32(c.H4) << 20) - (int32(c.H5) * v) + 16384) >> 15
	b := (((((v*int32(c.H6))>>10)*(((v*int32(c.H3))>>11)+32768))>>10)+2097152)*int32(c.H2) + 8192
	v = a * (b >> 14)
	v -= (((v >> 15) * (v >> 15)) >> 7) * int32(c.H1) >> 4
	v = min(max(v, 0), 419430400)
	return float32(v>>12) / 1024
}
