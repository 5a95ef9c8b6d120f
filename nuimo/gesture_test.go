package nuimo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeButton(t *testing.T) {
	event, ok := decodeGesture(kindButton, []byte{0x01})
	require.True(t, ok)
	require.Equal(t, GestureButtonPress, event.Gesture)

	event, ok = decodeGesture(kindButton, []byte{0x00})
	require.True(t, ok)
	require.Equal(t, GestureButtonRelease, event.Gesture)

	_, ok = decodeGesture(kindButton, nil)
	require.False(t, ok)
}

func TestDecodeTouch(t *testing.T) {
	cases := []struct {
		code byte
		want Gesture
	}{
		{0, GestureSwipeLeft},
		{1, GestureSwipeRight},
		{2, GestureSwipeUp},
		{3, GestureSwipeDown},
		{4, GestureTouchLeft},
		{5, GestureTouchRight},
		{6, GestureTouchTop},
		{7, GestureTouchBottom},
		{8, GestureLongTouchLeft},
		{9, GestureLongTouchRight},
		{10, GestureLongTouchTop},
		{11, GestureLongTouchBottom},
	}
	for _, tc := range cases {
		event, ok := decodeGesture(kindTouch, []byte{tc.code})
		require.True(t, ok, "code %d", tc.code)
		require.Equal(t, tc.want, event.Gesture, "code %d", tc.code)
	}

	_, ok := decodeGesture(kindTouch, []byte{12})
	require.False(t, ok)
}

func TestDecodeRotation(t *testing.T) {
	cases := []struct {
		payload []byte
		want    int
	}{
		{[]byte{0x00, 0x00}, 0},
		{[]byte{0x01, 0x00}, 1},
		{[]byte{0xff, 0x00}, 255},
		{[]byte{0xff, 0x7f}, 32767},
		{[]byte{0xff, 0xff}, -1},
		{[]byte{0x00, 0x80}, -32768},
		{[]byte{0x9c, 0xff}, -100},
	}
	for _, tc := range cases {
		event, ok := decodeGesture(kindRotation, tc.payload)
		require.True(t, ok)
		require.Equal(t, GestureRotation, event.Gesture)
		require.Equal(t, tc.want, event.Value, "payload %v", tc.payload)
	}

	_, ok := decodeGesture(kindRotation, []byte{0x01})
	require.False(t, ok)
}

func TestDecodeFly(t *testing.T) {
	cases := []struct {
		payload []byte
		want    Gesture
		value   int
	}{
		{[]byte{0x00, 0x00}, GestureFlyLeft, 0},
		{[]byte{0x01, 0x00}, GestureFlyRight, 0},
		{[]byte{0x02, 0x00}, GestureFlyToward, 0},
		{[]byte{0x03, 0x00}, GestureFlyBackward, 0},
		{[]byte{0x04, 0x7b}, GestureFlyUpDown, 123},

		// Directional reports carry no distance byte.
		{[]byte{0x00}, GestureFlyLeft, 0},
		{[]byte{0x03}, GestureFlyBackward, 0},
	}
	for _, tc := range cases {
		event, ok := decodeGesture(kindFly, tc.payload)
		require.True(t, ok)
		require.Equal(t, tc.want, event.Gesture)
		require.Equal(t, tc.value, event.Value)
	}

	_, ok := decodeGesture(kindFly, []byte{0x05, 0x00})
	require.False(t, ok)
	_, ok = decodeGesture(kindFly, []byte{0x04})
	require.False(t, ok)
	_, ok = decodeGesture(kindFly, nil)
	require.False(t, ok)
}

func TestGestureEventString(t *testing.T) {
	require.Equal(t, "rotation(-12)", GestureEvent{Gesture: GestureRotation, Value: -12}.String())
	require.Equal(t, "button_press", GestureEvent{Gesture: GestureButtonPress}.String())
}
