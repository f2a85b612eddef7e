// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vl53l0x

import "fmt"

// IdentificationError is returned by NewI2C when the device at the probed
// address does not report the VL53L0X model identifier.
type IdentificationError struct {
	Got byte
}

func (e *IdentificationError) Error() string {
	return fmt.Sprintf("vl53l0x: unexpected model id %#02x, want %#02x", e.Got, ModelID)
}

// RangeTimeoutError is returned when the data-ready status did not appear
// within the configured poll budget.
type RangeTimeoutError struct{}

func (e *RangeTimeoutError) Error() string {
	return "vl53l0x: measurement did not complete in time"
}

// RangeStatusError is returned when the device reports a non-valid range
// status for a completed measurement.
type RangeStatusError struct {
	Status byte
}

func (e *RangeStatusError) Error() string {
	return fmt.Sprintf("vl53l0x: invalid range status %#02x", e.Status)
}
