package ringchan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendReceive(t *testing.T) {
	rc := New[int](4)
	rc.Send(1)
	rc.Send(2)
	require.Equal(t, 2, rc.Len())
	require.Equal(t, 1, <-rc.C())
	require.Equal(t, 2, <-rc.C())
}

func TestSendOverwritesOldest(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Send(2)
	rc.Send(3)

	require.Equal(t, int64(1), rc.Dropped())
	require.Equal(t, 2, <-rc.C())
	require.Equal(t, 3, <-rc.C())
}

func TestTrySend(t *testing.T) {
	rc := New[string](1)
	require.True(t, rc.TrySend("a"))
	require.False(t, rc.TrySend("b"))
	require.Equal(t, "a", <-rc.C())
	require.True(t, rc.TrySend("c"))
}

func TestCloseEndsRange(t *testing.T) {
	rc := New[int](2)
	rc.Send(7)
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	require.Equal(t, []int{7}, got)
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	require.Panics(t, func() { New[int](0) })
}
