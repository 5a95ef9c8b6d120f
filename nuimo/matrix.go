package nuimo

import "time"

// MatrixWidth and MatrixHeight describe the controller's LED grid.
const (
	MatrixWidth  = 9
	MatrixHeight = 9
	matrixLEDs   = MatrixWidth * MatrixHeight
)

// LedMatrix is the on/off state of the 9x9 LED grid, row major, top left
// first.
type LedMatrix [matrixLEDs]bool

// NewLedMatrix builds a matrix from a string, one character per LED in row
// major order. ' ' and '0' mean off, anything else on. Input longer than 81
// characters is truncated; shorter input leaves the remaining LEDs off.
// Newlines are ignored so matrices can be written as raw string literals.
func NewLedMatrix(s string) LedMatrix {
	var m LedMatrix
	i := 0
	for _, r := range s {
		if r == '\n' || r == '\r' {
			continue
		}
		if i >= matrixLEDs {
			break
		}
		m[i] = r != ' ' && r != '0'
		i++
	}
	return m
}

// String renders the matrix as 9 lines of '*' and ' '.
func (m LedMatrix) String() string {
	buf := make([]byte, 0, matrixLEDs+MatrixHeight)
	for row := 0; row < MatrixHeight; row++ {
		for col := 0; col < MatrixWidth; col++ {
			if m[row*MatrixWidth+col] {
				buf = append(buf, '*')
			} else {
				buf = append(buf, ' ')
			}
		}
		buf = append(buf, '\n')
	}
	return string(buf)
}

// Equal reports whether both matrices light the same LEDs.
func (m LedMatrix) Equal(other LedMatrix) bool {
	return m == other
}

// encodeMatrix packs a display request into the controller's write payload:
// 81 LED bits packed 8 per byte (11 bytes), a brightness byte and a display
// interval byte in tenths of a second. Fading mode is flagged on bit 4 of
// the last bit-carrying byte, outside the 81 LED bits.
func encodeMatrix(m LedMatrix, brightness float64, interval time.Duration, fading bool) []byte {
	payload := make([]byte, 13)
	for i, on := range m {
		if on {
			payload[i/8] |= 1 << (i % 8)
		}
	}
	if fading {
		payload[10] |= 1 << 4
	}
	payload[11] = byte(clamp01(brightness) * 255)
	payload[12] = clampByte(interval.Seconds() * 10)
	return payload
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
