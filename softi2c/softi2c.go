// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// DefaultAddr is the 7-bit address the responder answers on unless
// configured otherwise.
const DefaultAddr uint16 = 0x29

// Opts holds the shared configuration of one end of the link.
type Opts struct {
	// Addr is the 7-bit address the responder engines answer on. The
	// controller ignores it; every transfer names its target explicitly.
	Addr uint16
	// BitPeriod is the duration of one quarter of a clock cycle. Four of
	// them make a full clock. Sensible values are 500µs to 5ms.
	BitPeriod time.Duration
	// EdgeTimeout caps every bounded wait on a clock or data edge. Zero
	// selects 50 bit periods.
	EdgeTimeout time.Duration
	// MaxFailures is the number of consecutive soft errors after which the
	// controller runs bus recovery and the responder inserts an extended
	// idle pause. Zero selects 2.
	MaxFailures int
	// Monitor receives protocol events. May be zero.
	Monitor Monitor
}

// DefaultOpts matches the defaults of the reference wiring: address 0x29,
// 2ms quarter phases.
var DefaultOpts = Opts{
	Addr:      DefaultAddr,
	BitPeriod: 2 * time.Millisecond,
}

// Monitor receives protocol events from an engine. Any of the fields may be
// nil.
type Monitor struct {
	// Transaction fires after a completed transfer with the direction seen
	// on the wire and the number of data bytes moved.
	Transaction func(read bool, n int)
	// SoftError fires when a transaction is aborted by a timeout or a nack.
	SoftError func(err error)
	// Recovery fires when the engine runs its recovery action.
	Recovery func()
}

func (m *Monitor) transaction(read bool, n int) {
	if m.Transaction != nil {
		m.Transaction(read, n)
	}
}

func (m *Monitor) softError(err error) {
	if m.SoftError != nil {
		m.SoftError(err)
	}
}

func (m *Monitor) recovery() {
	if m.Recovery != nil {
		m.Recovery()
	}
}

func (o *Opts) fill() {
	if o.Addr == 0 {
		o.Addr = DefaultAddr
	}
	if o.BitPeriod <= 0 {
		o.BitPeriod = DefaultOpts.BitPeriod
	}
	if o.EdgeTimeout <= 0 {
		o.EdgeTimeout = 50 * o.BitPeriod
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 2
	}
}

// pollInterval is how often a bounded wait samples its line. A tenth of the
// bit period keeps the sampling error well inside one quarter phase.
func (o *Opts) pollInterval() time.Duration {
	p := o.BitPeriod / 10
	if p < time.Microsecond {
		p = time.Microsecond
	}
	return p
}

// waitLevel polls l until it reads want. Returns false once timeout has
// elapsed without the level being observed.
func waitLevel(l *Line, want gpio.Level, poll, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for l.Read() != want {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(poll)
	}
	return true
}
