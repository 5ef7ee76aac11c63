package gpu

import "errors"

var (
	ErrDeviceLost         = errors.New("gpu device lost")
	ErrUnsupportedFormat  = errors.New("unsupported texture format")
	ErrOutOfMemory        = errors.New("out of device memory")
	ErrInvalidDesc        = errors.New("invalid resource description")
	ErrAlreadyDestroyed   = errors.New("gpu object already destroyed")
	ErrCmdNotRecording    = errors.New("command buffer is not recording")
	ErrFencePending       = errors.New("fence is still pending")
	ErrQueueTypeMissing   = errors.New("device has no queue of the requested type")
	ErrBackendUnavailable = errors.New("renderer backend unavailable in this build")
)
