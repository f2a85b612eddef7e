// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package vl53l0x implements both ends of a VL53L0X-class time-of-flight
// ranging device spoken over I²C.
//
// Dev is the controller-side driver: it starts single-shot measurements,
// waits for the data-ready interrupt status and reads the 16-bit distance.
// It works over any i2c.Bus, including softi2c.Bus on a bit-banged link.
//
// Emulator is the responder-side model: a 256-byte register file with the
// device's identification constants and a simulated conversion that
// completes roughly 75ms after the start strobe. It plugs into
// softi2c.Responder or softi2c.EdgeResponder through the softi2c.Device
// interface.
//
// The register map follows the ST datasheet register names; only the subset
// the measurement workflow touches has defined side effects, everything
// else is scratch that persists as written.
package vl53l0x
