// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tofvirt hosts a software I²C link between two Linux hosts and a
// VL53L0X-class time-of-flight sensor emulated on top of it.
//
// The softi2c package bit-bangs the bus over two GPIO lines; the vl53l0x
// package contains both the controller-side driver and the responder-side
// register emulator. The cmd tree holds the runnable peers.
package tofvirt
