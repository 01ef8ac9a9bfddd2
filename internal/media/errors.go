package media

import "errors"

// Failure kinds shared by capture, validation and playback.
var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrLaunchFailed      = errors.New("recorder failed to launch")
	ErrFileCorrupt       = errors.New("recorded file is corrupt")
	ErrFileTooSmall      = errors.New("recorded file is too small")
	ErrNoFileProduced    = errors.New("recorder produced no file")
	ErrInvalidMedia      = errors.New("file is not playable media")
	ErrDecodeStall       = errors.New("frame decode stalled")
)
