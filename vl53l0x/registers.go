// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vl53l0x

const (
	regSysrangeStart             = 0x00
	regSystemInterruptConfigGPIO = 0x0A
	regSystemInterruptClear      = 0x0B
	regResultInterruptStatus     = 0x13
	regResultRangeStatus         = 0x14
	regResultRangeValue          = 0x1E // 16 bits, big-endian, millimetres
	regGpioHvMuxActiveHigh       = 0x84
	regVhvConfigPadSclSdaExtsup  = 0x89
	regIdentificationModelID     = 0xC0
	regIdentificationRevisionID  = 0xC2
)

const (
	// ModelID is the constant the device reports at 0xC0.
	ModelID = 0xEE
	// RevisionID is the constant the device reports at 0xC2.
	RevisionID = 0x10

	// interruptDataReady is the RESULT_INTERRUPT_STATUS value signalling a
	// completed conversion. It self-clears when read.
	interruptDataReady = 0x07
)
