// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vl53l0x

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func TestEmulatorPowerOnMap(t *testing.T) {
	e := NewEmulator(nil)
	for _, tc := range []struct {
		reg  uint8
		want byte
	}{
		{regIdentificationModelID, 0xEE},
		{regIdentificationRevisionID, 0x10},
		{regGpioHvMuxActiveHigh, 0x01},
		{regResultInterruptStatus, 0x00},
		{regResultRangeStatus, 0x00},
		{regSysrangeStart, 0x00},
		{regResultRangeValue, 0x03},
		{regResultRangeValue + 1, 0xE8},
		{0x42, 0x00},
	} {
		if got := e.ReadRegister(tc.reg); got != tc.want {
			t.Errorf("reg %#02x = %#02x, want %#02x", tc.reg, got, tc.want)
		}
	}
	if e.Distance() != 1000*physic.MilliMetre {
		t.Fatalf("initial distance = %s, want 1m", e.Distance())
	}
}

func TestEmulatorScratchPersists(t *testing.T) {
	e := NewEmulator(nil)
	e.WriteRegister(0x42, 0xA5)
	e.WriteRegister(0x89, 0x01)
	if got := e.ReadRegister(0x42); got != 0xA5 {
		t.Fatalf("reg 0x42 = %#02x, want 0xA5", got)
	}
	if got := e.ReadRegister(0x89); got != 0x01 {
		t.Fatalf("reg 0x89 = %#02x, want 0x01", got)
	}
}

func TestEmulatorMeasurementCycle(t *testing.T) {
	e := NewEmulator(&EmulatorOpts{ConversionLatency: 50 * time.Millisecond, Seed: 1})

	// The start strobe is edge-triggered, not latched.
	e.WriteRegister(regSysrangeStart, 0x01)
	if got := e.ReadRegister(regSysrangeStart); got != 0x00 {
		t.Fatalf("SYSRANGE_START latched %#02x", got)
	}

	// Not ready before the conversion latency has elapsed.
	e.Tick()
	if got := e.ReadRegister(regResultInterruptStatus); got != 0x00 {
		t.Fatalf("interrupt status = %#02x before latency", got)
	}

	time.Sleep(60 * time.Millisecond)
	e.Tick()
	if got := e.ReadRegister(regResultInterruptStatus); got != 0x07 {
		t.Fatalf("interrupt status = %#02x after latency, want 0x07", got)
	}
	// The observing read above cleared it.
	if got := e.ReadRegister(regResultInterruptStatus); got != 0x00 {
		t.Fatalf("interrupt status = %#02x after consumption, want 0x00", got)
	}

	mm := uint16(e.ReadRegister(regResultRangeValue))<<8 | uint16(e.ReadRegister(regResultRangeValue+1))
	if mm < minDistanceMM || mm > maxDistanceMM {
		t.Fatalf("distance %dmm out of bounds", mm)
	}
}

func TestEmulatorStrobeIgnoredWhileBusy(t *testing.T) {
	e := NewEmulator(&EmulatorOpts{ConversionLatency: time.Hour, Seed: 1})
	e.WriteRegister(regSysrangeStart, 0x01)
	started := e.started
	e.WriteRegister(regSysrangeStart, 0x01)
	if e.started != started {
		t.Fatal("a strobe while converting must not restart the measurement")
	}
	// A write with bit 0 clear is an ordinary store.
	e.WriteRegister(regSysrangeStart, 0x02)
	if got := e.ReadRegister(regSysrangeStart); got != 0x02 {
		t.Fatalf("reg 0x00 = %#02x, want 0x02", got)
	}
}

func TestEmulatorDistanceWalkStaysBounded(t *testing.T) {
	e := NewEmulator(&EmulatorOpts{ConversionLatency: time.Nanosecond, Seed: 42})
	for i := 0; i < 200; i++ {
		e.WriteRegister(regSysrangeStart, 0x01)
		e.Tick()
		if got := e.ReadRegister(regResultInterruptStatus); got != 0x07 {
			t.Fatalf("cycle %d: interrupt status = %#02x, want 0x07", i, got)
		}
		mm := uint16(e.ReadRegister(regResultRangeValue))<<8 | uint16(e.ReadRegister(regResultRangeValue+1))
		if mm < minDistanceMM || mm > maxDistanceMM {
			t.Fatalf("cycle %d: distance %dmm out of bounds", i, mm)
		}
	}
}

func TestEmulatorStartClearsStaleStatus(t *testing.T) {
	e := NewEmulator(&EmulatorOpts{ConversionLatency: time.Nanosecond, Seed: 1})
	e.WriteRegister(regSysrangeStart, 0x01)
	e.Tick()
	// Data-ready is pending but unread; a device reset to idle requires the
	// status read.
	if got := e.ReadRegister(regResultInterruptStatus); got != 0x07 {
		t.Fatalf("interrupt status = %#02x, want 0x07", got)
	}
	// The read above cleared the status; leave a stale data-ready value
	// behind in the idle state so the strobe has something to clear.
	e.WriteRegister(regResultInterruptStatus, interruptDataReady)
	e.WriteRegister(regSysrangeStart, 0x01)
	if got := e.regs[regResultInterruptStatus]; got != 0x00 {
		t.Fatalf("a fresh strobe must clear the interrupt status, got %#02x", got)
	}
}
