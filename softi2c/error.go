// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import (
	"errors"
	"fmt"
)

// ErrNoDevice signals that no responder acknowledged the address byte.
var ErrNoDevice = errors.New("softi2c: no device responded")

// errNack is the internal result of an acknowledgement slot read high. The
// engines convert it into ErrNoDevice or a NackError before it escapes.
var errNack = errors.New("softi2c: nack")

// NackError reports that the responder did not acknowledge a data byte.
type NackError struct {
	// Index is the zero-based position of the rejected byte in the
	// transfer, not counting the address byte.
	Index int
}

func (e *NackError) Error() string {
	return fmt.Sprintf("softi2c: nack at data byte %d", e.Index)
}

// EdgeTimeoutError reports that a bounded wait on a clock or data edge
// expired. The transaction it belonged to was aborted.
type EdgeTimeoutError struct {
	// Op names the wait that expired.
	Op string
}

func (e *EdgeTimeoutError) Error() string {
	return "softi2c: timeout waiting for " + e.Op
}
