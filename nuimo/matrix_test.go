package nuimo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewLedMatrix(t *testing.T) {
	m := NewLedMatrix("*0 *")
	require.True(t, m[0])
	require.False(t, m[1])
	require.False(t, m[2])
	require.True(t, m[3])
	for i := 4; i < matrixLEDs; i++ {
		require.False(t, m[i], "led %d", i)
	}
}

func TestSameStringBuildsEqualMatrices(t *testing.T) {
	require.True(t, NewLedMatrix(" * * * ").Equal(NewLedMatrix(" * * * ")))
	require.False(t, NewLedMatrix("*").Equal(NewLedMatrix(" *")))
}

func TestNewLedMatrixIgnoresNewlines(t *testing.T) {
	withNewlines := NewLedMatrix("*   \n    *")
	flat := NewLedMatrix("*       *")
	require.True(t, withNewlines.Equal(flat))
}

func TestNewLedMatrixTruncatesLongInput(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = '*'
	}
	m := NewLedMatrix(string(long))
	for i := 0; i < matrixLEDs; i++ {
		require.True(t, m[i])
	}
}

func TestEncodeMatrixPacksBits(t *testing.T) {
	var m LedMatrix
	m[0] = true
	m[7] = true
	m[8] = true
	m[80] = true

	payload := encodeMatrix(m, 1.0, 2*time.Second, false)
	require.Len(t, payload, 13)
	require.Equal(t, byte(0x81), payload[0])
	require.Equal(t, byte(0x01), payload[1])
	require.Equal(t, byte(0x01), payload[10])
	require.Equal(t, byte(255), payload[11])
	require.Equal(t, byte(20), payload[12])
}

func TestEncodeMatrixFadingFlag(t *testing.T) {
	var m LedMatrix
	plain := encodeMatrix(m, 1.0, time.Second, false)
	fading := encodeMatrix(m, 1.0, time.Second, true)
	require.Equal(t, byte(0x00), plain[10])
	require.Equal(t, byte(0x10), fading[10])
}

func TestEncodeMatrixClampsBrightness(t *testing.T) {
	var m LedMatrix
	require.Equal(t, encodeMatrix(m, 0.0, time.Second, false), encodeMatrix(m, -1.0, time.Second, false))
	require.Equal(t, encodeMatrix(m, 1.0, time.Second, false), encodeMatrix(m, 2.0, time.Second, false))
	require.Equal(t, byte(127), encodeMatrix(m, 0.5, time.Second, false)[11])
}

func TestEncodeMatrixClampsInterval(t *testing.T) {
	var m LedMatrix
	require.Equal(t, byte(255), encodeMatrix(m, 1.0, time.Minute, false)[12])
	require.Equal(t, byte(0), encodeMatrix(m, 1.0, -time.Second, false)[12])
	require.Equal(t, byte(5), encodeMatrix(m, 1.0, 500*time.Millisecond, false)[12])
}

func TestMatrixString(t *testing.T) {
	var m LedMatrix
	m[0] = true
	lines := m.String()
	require.Equal(t, byte('*'), lines[0])
	require.Equal(t, byte(' '), lines[1])
}
