package audioio

import (
	"errors"
	"strings"
)

var (
	// ErrPermissionDenied is returned when the OS refuses access to the
	// capture or playback device.
	ErrPermissionDenied = errors.New("audioio: permission denied")

	// ErrBackendUnavailable is returned when no tool for the backend is
	// installed or the platform is unsupported.
	ErrBackendUnavailable = errors.New("audioio: backend unavailable")

	// ErrClosed is returned by operations on a closed source or sink.
	ErrClosed = errors.New("audioio: closed")

	// ErrInvalidWAV is returned by DecodeWAV for malformed input.
	ErrInvalidWAV = errors.New("audioio: invalid wav data")
)

// permissionMarkers are substrings capture tools print when the device
// cannot be opened for lack of permission.
var permissionMarkers = []string{
	"permission denied",
	"operation not permitted",
	"not authorized",
	"access denied",
}

func isPermissionMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range permissionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
