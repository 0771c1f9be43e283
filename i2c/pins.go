package i2c

import "fmt"

// Variant identifies the microcontroller family a node is built on. Each
// family exposes one I2C bus on fixed pins.
type Variant string

const (
	VariantESP32   Variant = "esp32"
	VariantESP32C3 Variant = "esp32c3"
	VariantESP32C6 Variant = "esp32c6"
	VariantESP32S3 Variant = "esp32s3"
)

type Pins struct {
	SDA int
	SCL int
}

func (p Pins) String() string {
	return fmt.Sprintf("SDA=GPIO%d SCL=GPIO%d", p.SDA, p.SCL)
}

// PinsFor returns the bus pins of a chip variant. Unknown variants get the
// classic ESP32 assignment.
func PinsFor(v Variant) Pins {
	switch v {
	case VariantESP32C6:
		return Pins{SDA: 6, SCL: 7}
	case VariantESP32S3:
		return Pins{SDA: 8, SCL: 9}
	case VariantESP32C3:
		return Pins{SDA: 4, SCL: 6}
	default:
		return Pins{SDA: 21, SCL: 22}
	}
}
