// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package softi2c bit-bangs an I²C bus over two open-drain GPIO lines.
//
// Both ends of the link are implemented in software: Controller generates
// START/STOP conditions and the clock, Responder (polled) and EdgeResponder
// (bus-edge state machine) answer on a configured 7-bit address and serve a
// register-style device model through the Device interface.
//
// The link is timed in software at hundreds of microseconds per bit and
// relies on external pull-up resistors; it makes no attempt to meet the
// standard-mode I²C electrical or timing specification. Clock stretching and
// multi-controller arbitration are not supported.
//
// Bus adapts a Controller to conn's i2c.Bus so that ordinary register
// drivers can run over the bit-banged link unchanged.
package softi2c
