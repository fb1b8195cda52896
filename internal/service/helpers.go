package service

import (
	"time"
)

// GetExpiresAt converts an OAuth expires_in (seconds) into an absolute UTC time.
// Non-positive values mean the token does not expire and yield nil.
func GetExpiresAt(now time.Time, expiresIn int) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := now.Add(time.Duration(expiresIn) * time.Second).UTC()
	return &t
}
