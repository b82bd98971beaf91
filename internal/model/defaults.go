package model

import "time"

// Shared defaults used by the server binary and its components.
const (
	DefaultQueryTimeout    = 30 * time.Second
	DefaultRebuildInterval = 0 // disabled
	DefaultLogLevel        = "info"
)
