package nuimo

import "fmt"

// Gesture identifies one user input event decoded from a controller
// notification.
type Gesture int

const (
	GestureUnknown Gesture = iota

	GestureButtonPress
	GestureButtonRelease

	GestureSwipeLeft
	GestureSwipeRight
	GestureSwipeUp
	GestureSwipeDown

	GestureTouchLeft
	GestureTouchRight
	GestureTouchTop
	GestureTouchBottom

	GestureLongTouchLeft
	GestureLongTouchRight
	GestureLongTouchTop
	GestureLongTouchBottom

	GestureRotation

	GestureFlyLeft
	GestureFlyRight
	GestureFlyToward
	GestureFlyBackward
	GestureFlyUpDown
)

var gestureNames = map[Gesture]string{
	GestureButtonPress:     "button_press",
	GestureButtonRelease:   "button_release",
	GestureSwipeLeft:       "swipe_left",
	GestureSwipeRight:      "swipe_right",
	GestureSwipeUp:         "swipe_up",
	GestureSwipeDown:       "swipe_down",
	GestureTouchLeft:       "touch_left",
	GestureTouchRight:      "touch_right",
	GestureTouchTop:        "touch_top",
	GestureTouchBottom:     "touch_bottom",
	GestureLongTouchLeft:   "long_touch_left",
	GestureLongTouchRight:  "long_touch_right",
	GestureLongTouchTop:    "long_touch_top",
	GestureLongTouchBottom: "long_touch_bottom",
	GestureRotation:        "rotation",
	GestureFlyLeft:         "fly_left",
	GestureFlyRight:        "fly_right",
	GestureFlyToward:       "fly_toward",
	GestureFlyBackward:     "fly_backward",
	GestureFlyUpDown:       "fly_updown",
}

func (g Gesture) String() string {
	if name, ok := gestureNames[g]; ok {
		return name
	}
	return fmt.Sprintf("gesture(%d)", int(g))
}

// GestureEvent is one decoded input event. Value carries the signed rotation
// delta for GestureRotation and the height reading for GestureFlyUpDown;
// it is zero for every other gesture.
type GestureEvent struct {
	Gesture Gesture
	Value   int
}

func (e GestureEvent) String() string {
	switch e.Gesture {
	case GestureRotation, GestureFlyUpDown:
		return fmt.Sprintf("%s(%d)", e.Gesture, e.Value)
	default:
		return e.Gesture.String()
	}
}

// characteristicKind names the input characteristics the codec understands.
type characteristicKind int

const (
	kindNone characteristicKind = iota
	kindButton
	kindTouch
	kindRotation
	kindFly
	kindLEDMatrix
)

// touchGestures maps the touch event code of byte 0 to its gesture.
var touchGestures = [12]Gesture{
	GestureSwipeLeft,
	GestureSwipeRight,
	GestureSwipeUp,
	GestureSwipeDown,
	GestureTouchLeft,
	GestureTouchRight,
	GestureTouchTop,
	GestureTouchBottom,
	GestureLongTouchLeft,
	GestureLongTouchRight,
	GestureLongTouchTop,
	GestureLongTouchBottom,
}

// decodeGesture turns one notification payload into a gesture event.
// Payloads that do not decode (wrong length, out-of-range codes) return
// ok == false and are dropped by the caller.
func decodeGesture(kind characteristicKind, value []byte) (GestureEvent, bool) {
	switch kind {
	case kindButton:
		if len(value) < 1 {
			return GestureEvent{}, false
		}
		if value[0] == 0 {
			return GestureEvent{Gesture: GestureButtonRelease}, true
		}
		return GestureEvent{Gesture: GestureButtonPress}, true

	case kindTouch:
		if len(value) < 1 || int(value[0]) >= len(touchGestures) {
			return GestureEvent{}, false
		}
		return GestureEvent{Gesture: touchGestures[value[0]]}, true

	case kindRotation:
		if len(value) < 2 {
			return GestureEvent{}, false
		}
		// Signed 16-bit little endian delta.
		v := int(value[0]) | int(value[1])<<8
		if value[1]&0x80 != 0 {
			v -= 1 << 16
		}
		return GestureEvent{Gesture: GestureRotation, Value: v}, true

	case kindFly:
		if len(value) < 1 {
			return GestureEvent{}, false
		}
		switch value[0] {
		case 0:
			return GestureEvent{Gesture: GestureFlyLeft}, true
		case 1:
			return GestureEvent{Gesture: GestureFlyRight}, true
		case 2:
			return GestureEvent{Gesture: GestureFlyToward}, true
		case 3:
			return GestureEvent{Gesture: GestureFlyBackward}, true
		case 4:
			// Only the up/down report carries a distance byte.
			if len(value) < 2 {
				return GestureEvent{}, false
			}
			return GestureEvent{Gesture: GestureFlyUpDown, Value: int(value[1])}, true
		default:
			return GestureEvent{}, false
		}
	}
	return GestureEvent{}, false
}
