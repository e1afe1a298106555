// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models holds the persistent records of the service.
package models

// Millis converts an epoch-millisecond timestamp pointer to a plain value,
// returning 0 for nil.
func Millis(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
