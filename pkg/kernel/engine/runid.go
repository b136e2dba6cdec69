package engine

import (
	"crypto/rand"
	"fmt"
	"time"
)

// NewRunID creates a run ID in format YYYYMMDDTHHmmss-xxxxxxxx.
func NewRunID() string {
	ts := time.Now().Format("20060102T150405")
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}
