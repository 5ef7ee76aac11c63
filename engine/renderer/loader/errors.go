package loader

import "errors"

var (
	// ErrInvalidRequest marks a request that could not be processed. Its token still completes.
	ErrInvalidRequest = errors.New("invalid resource load request")
	// ErrStagingBufferFull is returned by a copy engine whose staging buffer cannot fit
	// an allocation. It is retried internally and never surfaced to callers.
	ErrStagingBufferFull  = errors.New("staging buffer full")
	ErrNodeMismatch       = errors.New("source and destination are on different gpu nodes")
	ErrLoaderShutdown     = errors.New("resource loader is shut down")
	ErrUnknownResource    = errors.New("unknown resource type")
	ErrGeometryBufferFull = errors.New("geometry buffer has no room for the requested part")
)
