// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vl53l0x

import (
	"math/rand"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Distance bounds and walk step of the simulated target, in millimetres.
const (
	minDistanceMM  = 100
	maxDistanceMM  = 2000
	walkStepMM     = 50
	defaultStartMM = 1000
)

// DefaultConversionLatency is the simulated single-shot conversion time.
const DefaultConversionLatency = 75 * time.Millisecond

type measState uint8

const (
	measIdle measState = iota
	measInProgress
	measComplete
)

// EmulatorOpts configures an Emulator.
type EmulatorOpts struct {
	// ConversionLatency is the simulated delay between the start strobe and
	// data-ready. Zero selects DefaultConversionLatency.
	ConversionLatency time.Duration
	// InitialDistance is the first reported distance in millimetres,
	// clamped into [100, 2000]. Zero selects 1000.
	InitialDistance uint16
	// Seed seeds the distance random walk. Zero selects a time-derived
	// seed.
	Seed int64
}

// DefaultEmulatorOpts is the emulator as the reference hardware behaves.
var DefaultEmulatorOpts = EmulatorOpts{}

// Emulator models the device behind a 256-byte register file. It implements
// softi2c.Device; all methods are driven from the single goroutine running
// the responder engine, so no locking is needed.
type Emulator struct {
	regs    [256]byte
	state   measState
	started time.Time
	dist    uint16
	latency time.Duration
	rng     *rand.Rand
}

// NewEmulator returns an emulator with the power-on register map: the
// identification constants, a valid range status and the initial distance
// already present in the result registers.
func NewEmulator(opts *EmulatorOpts) *Emulator {
	o := DefaultEmulatorOpts
	if opts != nil {
		o = *opts
	}
	if o.ConversionLatency <= 0 {
		o.ConversionLatency = DefaultConversionLatency
	}
	if o.InitialDistance == 0 {
		o.InitialDistance = defaultStartMM
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	e := &Emulator{
		dist:    clampDistance(int(o.InitialDistance)),
		latency: o.ConversionLatency,
		rng:     rand.New(rand.NewSource(o.Seed)),
	}
	e.regs[regIdentificationModelID] = ModelID
	e.regs[regIdentificationRevisionID] = RevisionID
	e.regs[regGpioHvMuxActiveHigh] = 0x01
	e.storeDistance()
	return e
}

// ReadRegister implements softi2c.Device. Reading RESULT_INTERRUPT_STATUS
// while it holds the data-ready value clears it and returns the device to
// idle; the read still observes the data-ready value.
func (e *Emulator) ReadRegister(reg uint8) uint8 {
	v := e.regs[reg]
	if reg == regResultInterruptStatus && v == interruptDataReady {
		e.regs[reg] = 0x00
		e.state = measIdle
	}
	return v
}

// WriteRegister implements softi2c.Device. A write to SYSRANGE_START with
// bit 0 set strobes a measurement when the device is idle; the strobe is
// edge-triggered and not latched into the register file. Every other write
// is stored as-is.
func (e *Emulator) WriteRegister(reg, value uint8) {
	if reg == regSysrangeStart && value&0x01 != 0 {
		if e.state == measIdle {
			e.state = measInProgress
			e.started = time.Now()
			e.regs[regResultInterruptStatus] = 0x00
		}
		return
	}
	e.regs[reg] = value
}

// Tick implements softi2c.Device. Once the conversion latency has elapsed
// it walks the distance, publishes it big-endian in the result registers
// and raises the data-ready status.
func (e *Emulator) Tick() {
	if e.state != measInProgress {
		return
	}
	if time.Since(e.started) < e.latency {
		return
	}
	e.state = measComplete
	e.walkDistance()
	e.storeDistance()
	e.regs[regResultInterruptStatus] = interruptDataReady
}

// Distance returns the currently simulated distance.
func (e *Emulator) Distance() physic.Distance {
	return physic.Distance(e.dist) * physic.MilliMetre
}

func (e *Emulator) walkDistance() {
	step := e.rng.Intn(2*walkStepMM+1) - walkStepMM
	e.dist = clampDistance(int(e.dist) + step)
}

func (e *Emulator) storeDistance() {
	e.regs[regResultRangeValue] = byte(e.dist >> 8)
	e.regs[regResultRangeValue+1] = byte(e.dist)
}

func clampDistance(mm int) uint16 {
	if mm < minDistanceMM {
		return minDistanceMM
	}
	if mm > maxDistanceMM {
		return maxDistanceMM
	}
	return uint16(mm)
}
