package bluez

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorClassifiers(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		classify func(error) bool
	}{
		{
			name:     "unknown object",
			err:      &Error{Name: "org.freedesktop.DBus.Error.UnknownObject"},
			classify: IsUnknownObject,
		},
		{
			name:     "no reply",
			err:      &Error{Name: "org.freedesktop.DBus.Error.NoReply", Message: "timeout"},
			classify: IsNoReply,
		},
		{
			name:     "in progress",
			err:      &Error{Name: "org.bluez.Error.Failed", Message: "Operation already in progress"},
			classify: IsInProgress,
		},
		{
			name:     "connection abort",
			err:      &Error{Name: "org.bluez.Error.Failed", Message: "Software caused connection abort"},
			classify: IsConnectionAbort,
		},
		{
			name:     "already notifying",
			err:      &Error{Name: "org.bluez.Error.Failed", Message: "Already notifying"},
			classify: IsAlreadyNotifying,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, tc.classify(tc.err))
			for _, other := range cases {
				if other.name != tc.name {
					require.False(t, other.classify(tc.err), "misclassified as %s", other.name)
				}
			}
		})
	}
}

func TestClassifiersSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("connect: %w", &Error{
		Name:    "org.bluez.Error.Failed",
		Message: "Software caused connection abort",
	})
	require.True(t, IsConnectionAbort(err))
	require.False(t, IsInProgress(err))
}

func TestClassifiersRejectPlainErrors(t *testing.T) {
	err := fmt.Errorf("Software caused connection abort")
	require.False(t, IsConnectionAbort(err))
	require.False(t, IsUnknownObject(err))
}

func TestErrorMessageDisambiguatesFailed(t *testing.T) {
	// bluetoothd reuses the Failed name; the message decides the class.
	err := &Error{Name: "org.bluez.Error.Failed", Message: "le-connection-abort-by-local"}
	require.False(t, IsConnectionAbort(err))
	require.False(t, IsInProgress(err))
	require.False(t, IsAlreadyNotifying(err))
}
