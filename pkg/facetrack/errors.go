package facetrack

import "errors"

// Sentinel errors for lifecycle misuse.
var (
	// ErrDestroyed is returned by lifecycle calls after Destroy.
	ErrDestroyed = errors.New("facetrack: tracker destroyed")

	// ErrNoFactory is returned by Create when no resource factory is set.
	ErrNoFactory = errors.New("facetrack: no resource factory")
)
