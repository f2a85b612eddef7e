// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Bus adapts a Controller to i2c.Bus so register drivers written against
// conn can run over the bit-banged link.
//
// Tx with both a write and a read buffer is performed as two framed
// transfers separated by WriteReadGap; the responder carries the register
// pointer across the STOP, so the idiom behaves like a repeated START at
// the register level.
type Bus struct {
	c *Controller
	// WriteReadGap is the pause between the write and the read half of a
	// combined Tx. Software-timed responders need it to get back to their
	// start-detection loop.
	WriteReadGap time.Duration
}

// NewBus wraps c. A zero gap selects 10ms, one twentieth of the reference
// 5Hz measurement period.
func NewBus(c *Controller, gap time.Duration) *Bus {
	if gap <= 0 {
		gap = 10 * time.Millisecond
	}
	return &Bus{c: c, WriteReadGap: gap}
}

func (b *Bus) String() string {
	return fmt.Sprintf("softi2c.Bus{%s, %s}", b.c.sda, b.c.scl)
}

// Tx implements i2c.Bus.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("softi2c: invalid 7-bit address %#x", addr)
	}
	if len(w) == 0 && len(r) == 0 {
		return b.c.Write(addr, nil)
	}
	return b.c.WriteRead(addr, w, r, b.WriteReadGap)
}

// SetSpeed implements i2c.Bus. The frequency names full clock cycles; one
// quarter of the period becomes the bit period.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("softi2c: invalid frequency %s", f)
	}
	period := f.Period() / 4
	if period < 10*time.Microsecond {
		return fmt.Errorf("softi2c: %s is too fast for a software-timed bus", f)
	}
	b.c.mu.Lock()
	b.c.opts.BitPeriod = period
	b.c.mu.Unlock()
	return nil
}

// Close implements i2c.BusCloser. It releases both lines.
func (b *Bus) Close() error {
	return b.c.Halt()
}

// SDA implements i2c.Pins.
func (b *Bus) SDA() gpio.PinIO {
	return b.c.sda.Pin()
}

// SCL implements i2c.Pins.
func (b *Bus) SCL() gpio.PinIO {
	return b.c.scl.Pin()
}

var _ i2c.BusCloser = &Bus{}
var _ i2c.Pins = &Bus{}
