// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Controller is the bus end that generates START/STOP conditions and drives
// the clock line. It is safe for use from multiple goroutines; transfers are
// serialized.
type Controller struct {
	mu       sync.Mutex
	sda      *Line
	scl      *Line
	opts     Opts
	failures int
}

// NewController requests the two pins as released open-drain lines and
// returns a controller over them. The bus is left idle (both lines high).
func NewController(sda, scl gpio.PinIO, opts *Opts) (*Controller, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	o.fill()
	sdaLine, err := NewLine(sda)
	if err != nil {
		return nil, err
	}
	sclLine, err := NewLine(scl)
	if err != nil {
		_ = sdaLine.Halt()
		return nil, err
	}
	return &Controller{sda: sdaLine, scl: sclLine, opts: o}, nil
}

func (c *Controller) String() string {
	return fmt.Sprintf("softi2c.Controller{%s, %s}", c.sda, c.scl)
}

// Halt releases both lines and halts the pins. Implements conn.Resource.
func (c *Controller) Halt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.sda.Halt()
	if sErr := c.scl.Halt(); err == nil {
		err = sErr
	}
	return err
}

// Write performs a framed write: START, address byte with the write bit, the
// data bytes, STOP. It returns ErrNoDevice if the address byte is not
// acknowledged and a *NackError naming the byte if a data byte is rejected.
func (c *Controller) Write(addr uint16, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(c.write(addr, p))
}

// Read performs a framed read of len(p) bytes: START, address byte with the
// read bit, the data bytes, STOP. Every byte but the last is acknowledged;
// the last is nacked to signal end-of-read.
func (c *Controller) Read(addr uint16, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(c.read(addr, p))
}

// WriteRead performs a write transfer followed, after gap, by a read
// transfer. This is the register-pointer idiom: w usually holds the pointer
// byte, and the responder carries the pointer over into the read. No
// repeated START is used; the write is closed with a STOP.
func (c *Controller) WriteRead(addr uint16, w, r []byte, gap time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(w) != 0 {
		if err := c.record(c.write(addr, w)); err != nil {
			return err
		}
	}
	if len(r) == 0 {
		return nil
	}
	if gap > 0 {
		time.Sleep(gap)
	}
	return c.record(c.read(addr, r))
}

// Scan probes the 7-bit address range 0x03..0x77 with empty write transfers
// and returns the addresses that acknowledged. Probe failures do not count
// towards the recovery threshold.
func (c *Controller) Scan() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var found []uint16
	for addr := uint16(0x03); addr <= 0x77; addr++ {
		if err := c.write(addr, nil); err == nil {
			found = append(found, addr)
		}
	}
	return found
}

// Recover releases both lines and pulses the clock low-high up to 9 times
// with the data line released, stopping early once the data line reads high,
// then emits a STOP. Used to unstick a responder that is holding the data
// line after a torn transfer.
func (c *Controller) Recover() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recover()
}

// record implements the consecutive-failure policy: after MaxFailures
// transaction errors in a row the recovery sequence runs and the counter
// resets.
func (c *Controller) record(err error) error {
	if err == nil {
		c.failures = 0
		return nil
	}
	c.opts.Monitor.softError(err)
	c.failures++
	if c.failures >= c.opts.MaxFailures {
		c.failures = 0
		if rErr := c.recover(); rErr != nil {
			return fmt.Errorf("%w (recovery also failed: %v)", err, rErr)
		}
	}
	return err
}

func (c *Controller) write(addr uint16, p []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("softi2c: invalid 7-bit address %#x", addr)
	}
	if err := c.start(); err != nil {
		return c.abort(err)
	}
	if err := c.writeByte(byte(addr<<1) | 0); err != nil {
		if err == errNack {
			c.stop()
			return ErrNoDevice
		}
		return c.abort(err)
	}
	for i, b := range p {
		if err := c.writeByte(b); err != nil {
			if err == errNack {
				c.stop()
				return &NackError{Index: i}
			}
			return c.abort(err)
		}
	}
	if err := c.stop(); err != nil {
		return c.abort(err)
	}
	c.opts.Monitor.transaction(false, len(p))
	return nil
}

func (c *Controller) read(addr uint16, p []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("softi2c: invalid 7-bit address %#x", addr)
	}
	if err := c.start(); err != nil {
		return c.abort(err)
	}
	if err := c.writeByte(byte(addr<<1) | 1); err != nil {
		if err == errNack {
			c.stop()
			return ErrNoDevice
		}
		return c.abort(err)
	}
	for i := range p {
		b, err := c.readByte(i < len(p)-1)
		if err != nil {
			return c.abort(err)
		}
		p[i] = b
	}
	if err := c.stop(); err != nil {
		return c.abort(err)
	}
	c.opts.Monitor.transaction(true, len(p))
	return nil
}

// abort forces both lines back to released before reporting err. A line
// reconfiguration failure mid-frame must not leave the bus held low.
func (c *Controller) abort(err error) error {
	_ = c.sda.Release()
	_ = c.scl.Release()
	return err
}

// start emits a START condition: with both lines high, data falls first,
// then the clock follows one quarter later. It does not assume an idle bus,
// so it doubles as a repeated START.
func (c *Controller) start() error {
	if err := c.sda.Release(); err != nil {
		return err
	}
	if err := c.scl.Release(); err != nil {
		return err
	}
	c.quarter()
	if err := c.sda.DriveLow(); err != nil {
		return err
	}
	c.quarter()
	if err := c.scl.DriveLow(); err != nil {
		return err
	}
	c.quarter()
	return nil
}

// stop emits a STOP condition: with the clock low, data is forced low, the
// clock released, and finally data released while the clock is high.
func (c *Controller) stop() error {
	if err := c.sda.DriveLow(); err != nil {
		return err
	}
	c.quarter()
	if err := c.scl.Release(); err != nil {
		return err
	}
	c.quarter()
	if err := c.sda.Release(); err != nil {
		return err
	}
	c.quarter()
	return nil
}

// writeBit drives one data bit across one clock pulse. The clock must be low
// on entry and is low again on return.
func (c *Controller) writeBit(bit gpio.Level) error {
	var err error
	if bit {
		err = c.sda.Release()
	} else {
		err = c.sda.DriveLow()
	}
	if err != nil {
		return err
	}
	c.quarter()
	if err := c.scl.Release(); err != nil {
		return err
	}
	c.quarter()
	c.quarter()
	if err := c.scl.DriveLow(); err != nil {
		return err
	}
	c.quarter()
	return nil
}

// readBit releases the data line and samples it in the middle of the clock
// high phase.
func (c *Controller) readBit() (gpio.Level, error) {
	if err := c.sda.Release(); err != nil {
		return gpio.Low, err
	}
	c.quarter()
	if err := c.scl.Release(); err != nil {
		return gpio.Low, err
	}
	c.quarter()
	bit := c.sda.Read()
	c.quarter()
	if err := c.scl.DriveLow(); err != nil {
		return gpio.Low, err
	}
	c.quarter()
	return bit, nil
}

// writeByte shifts b out most-significant-first and samples the
// acknowledgement slot. Returns errNack when the slot reads high.
func (c *Controller) writeByte(b byte) error {
	for i := 7; i >= 0; i-- {
		if err := c.writeBit(gpio.Level(b>>uint(i)&1 == 1)); err != nil {
			return err
		}
	}
	ack, err := c.readBit()
	if err != nil {
		return err
	}
	if ack == gpio.High {
		return errNack
	}
	return nil
}

// readByte shifts 8 bits in most-significant-first, then drives the
// acknowledgement slot low if ack is true, leaves it released otherwise.
func (c *Controller) readByte(ack bool) (byte, error) {
	var b byte
	for i := 7; i >= 0; i-- {
		bit, err := c.readBit()
		if err != nil {
			return 0, err
		}
		if bit {
			b |= 1 << uint(i)
		}
	}
	if err := c.writeBit(gpio.Level(!ack)); err != nil {
		return 0, err
	}
	if err := c.sda.Release(); err != nil {
		return 0, err
	}
	return b, nil
}

func (c *Controller) recover() error {
	c.opts.Monitor.recovery()
	if err := c.sda.Release(); err != nil {
		return err
	}
	if err := c.scl.Release(); err != nil {
		return err
	}
	for i := 0; i < 9; i++ {
		if err := c.scl.DriveLow(); err != nil {
			return err
		}
		c.quarter()
		if err := c.scl.Release(); err != nil {
			return err
		}
		c.quarter()
		if c.sda.Read() == gpio.High {
			break
		}
	}
	// The clock must be low for stop's release to form a rising edge.
	if err := c.scl.DriveLow(); err != nil {
		return err
	}
	c.quarter()
	if err := c.stop(); err != nil {
		return err
	}
	time.Sleep(2 * c.opts.BitPeriod)
	return nil
}

func (c *Controller) quarter() {
	time.Sleep(c.opts.BitPeriod)
}
