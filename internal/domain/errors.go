package domain

import "errors"

var (
	// ErrDeviceNotFound aborts an ingestion call before any write happens.
	// Devices must be enrolled out of band; this service never auto-registers.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrInvalidBatch is returned for an absent or structurally unusable batch.
	ErrInvalidBatch = errors.New("invalid batch")
)
