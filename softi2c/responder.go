// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import (
	"context"
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Device is the register-level model a responder serves. The engine delivers
// only well-formed accesses: the pointer byte of each write transfer is
// consumed by the engine, every data byte lands in WriteRegister or is
// fetched from ReadRegister, and Tick runs from the idle poll so the model
// can advance simulated time.
//
// All three methods are called from the single goroutine running Serve.
type Device interface {
	// ReadRegister returns the value of reg and applies any read side
	// effects.
	ReadRegister(reg uint8) uint8
	// WriteRegister stores value at reg and applies any write side effects.
	WriteRegister(reg, value uint8)
	// Tick advances the model's background state.
	Tick()
}

// Event classifies what ReceiveByte observed in place of a data byte.
type Event uint8

const (
	// EventByte means a data byte was received.
	EventByte Event = iota
	// EventStop means a STOP condition ended the transfer.
	EventStop
	// EventStart means a repeated START reopened the transfer.
	EventStart
)

// ErrNoStart is returned by Listen when no START condition was observed
// within the wait budget.
var ErrNoStart = errors.New("softi2c: no start condition observed")

// ErrNotAddressed is returned by Listen when the transfer targeted another
// address. The engine stays off the bus and the transfer passes by.
var ErrNotAddressed = errors.New("softi2c: transfer addressed elsewhere")

// Responder is the polled bus end. It never drives the clock line; its only
// timing reference is the clock edges produced by the controller, each
// awaited with a bounded timeout.
//
// The register pointer lives in the engine and survives transactions: a
// write transfer loads it from its first byte, and every data byte moved in
// either direction advances it by one, wrapping at 256.
type Responder struct {
	sda      *Line
	scl      *Line
	opts     Opts
	poll     time.Duration
	ptr      uint8
	failures int
}

// NewResponder requests the two pins as released open-drain lines and
// returns a responder listening on opts.Addr.
func NewResponder(sda, scl gpio.PinIO, opts *Opts) (*Responder, error) {
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
	return &Responder{sda: sdaLine, scl: sclLine, opts: o, poll: o.pollInterval()}, nil
}

func (r *Responder) String() string {
	return "softi2c.Responder{" + r.sda.String() + ", " + r.scl.String() + "}"
}

// Halt releases both lines and halts the pins. Implements conn.Resource.
func (r *Responder) Halt() error {
	err := r.sda.Halt()
	if sErr := r.scl.Halt(); err == nil {
		err = sErr
	}
	return err
}

// Serve runs the responder loop until ctx is cancelled: wait for a START,
// match the address, then move bytes between the bus and dev. A timing
// fault aborts the transaction in flight, releases the data line and counts
// towards the consecutive-failure threshold; at the threshold the engine
// pauses for ten bit periods before listening again.
func (r *Responder) Serve(ctx context.Context, dev Device) error {
	for {
		if err := ctx.Err(); err != nil {
			_ = r.sda.Release()
			_ = r.scl.Release()
			return err
		}
		dev.Tick()
		if err := r.waitForStart(ctx, dev.Tick); err != nil {
			if err == ErrNoStart {
				continue
			}
			_ = r.sda.Release()
			_ = r.scl.Release()
			return err
		}
		if err := r.frame(dev); err != nil {
			r.fault(err)
		} else {
			r.failures = 0
		}
	}
}

// Listen blocks until a START addressed to this responder is observed and
// acknowledged, then reports the transfer direction. It returns ErrNoStart
// on an empty bus and ErrNotAddressed when the transfer was for somebody
// else. Byte-stream applications pair it with ReceiveByte and SendByte.
func (r *Responder) Listen(ctx context.Context) (read bool, err error) {
	if err := r.waitForStart(ctx, nil); err != nil {
		return false, err
	}
	return r.listenAddr()
}

// ReceiveByte samples one byte against the controller's clock. The first
// bit slot may instead carry a STOP or a repeated START; the Event return
// says which. The acknowledgement is not sent; call AckByte if the byte is
// accepted.
func (r *Responder) ReceiveByte() (byte, Event, error) {
	if err := r.sda.Release(); err != nil {
		return 0, EventByte, err
	}
	bit, ev, err := r.firstBit()
	if err != nil || ev != EventByte {
		return 0, ev, err
	}
	var b byte
	if bit {
		b = 1
	}
	for i := 0; i < 7; i++ {
		bit, err := r.sampleBit()
		if err != nil {
			return 0, EventByte, err
		}
		b <<= 1
		if bit {
			b |= 1
		}
	}
	return b, EventByte, nil
}

// AckByte drives the acknowledgement slot low across one clock pulse.
func (r *Responder) AckByte() error {
	return r.emitBit(gpio.Low)
}

// SendByte shifts b out against the controller's clock and samples the
// controller's acknowledgement. acked reports false when the controller
// nacked, its end-of-read signal.
func (r *Responder) SendByte(b byte) (acked bool, err error) {
	for i := 7; i >= 0; i-- {
		if err := r.emitBit(gpio.Level(b>>uint(i)&1 == 1)); err != nil {
			return false, err
		}
	}
	ack, err := r.sampleBit()
	if err != nil {
		return false, err
	}
	return ack == gpio.Low, nil
}

// waitForStart returns once a high-to-low data transition is observed while
// the clock is high. An idle bus (both lines released high) must be seen
// first so that a transition in the middle of somebody else's transfer is
// not mistaken for a START.
func (r *Responder) waitForStart(ctx context.Context, tick func()) error {
	if err := r.sda.Release(); err != nil {
		return err
	}
	if err := r.scl.Release(); err != nil {
		return err
	}
	deadline := time.Now().Add(4 * r.opts.EdgeTimeout)
	idle := false
	haveLast := false
	var lastSDA gpio.Level
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tick != nil {
			tick()
		}
		sda := r.sda.Read()
		scl := r.scl.Read()
		if sda == gpio.High && scl == gpio.High {
			idle = true
		}
		if idle && haveLast && scl == gpio.High && lastSDA == gpio.High && sda == gpio.Low {
			return nil
		}
		lastSDA = sda
		haveLast = true
		if time.Now().After(deadline) {
			return ErrNoStart
		}
		time.Sleep(r.poll)
	}
}

// listenAddr samples the address byte right after a START, acknowledges a
// match and latches the direction bit.
func (r *Responder) listenAddr() (read bool, err error) {
	// The START's clock-high phase is still in flight; address bits begin
	// on the next rising edge.
	if !waitLevel(r.scl, gpio.Low, r.poll, r.opts.EdgeTimeout) {
		return false, &EdgeTimeoutError{Op: "clock fall after start"}
	}
	var addr byte
	for i := 0; i < 8; i++ {
		bit, err := r.sampleBit()
		if err != nil {
			return false, err
		}
		addr <<= 1
		if bit {
			addr |= 1
		}
	}
	if uint16(addr>>1) != r.opts.Addr {
		return false, ErrNotAddressed
	}
	read = addr&1 == 1
	if err := r.emitBit(gpio.Low); err != nil {
		return false, err
	}
	return read, nil
}

// frame serves one transaction from just after the START to its STOP (or
// the controller's end-of-read nack). A repeated START loops back into the
// address phase with the direction latch rerun but the pointer-loading flag
// preserved.
func (r *Responder) frame(dev Device) error {
	ptrLoaded := false
	for {
		read, err := r.listenAddr()
		if err != nil {
			if err == ErrNotAddressed {
				return nil
			}
			return err
		}
		if read {
			n, err := r.sendRun(dev)
			if err == nil {
				r.opts.Monitor.transaction(true, n)
			}
			return err
		}
		again, n, err := r.recvRun(dev, &ptrLoaded)
		if err != nil {
			return err
		}
		r.opts.Monitor.transaction(false, n)
		if !again {
			return nil
		}
	}
}

// recvRun accepts the pointer byte and data bytes of a write transfer until
// a STOP or repeated START. restart reports the latter.
func (r *Responder) recvRun(dev Device, ptrLoaded *bool) (restart bool, n int, err error) {
	for {
		b, ev, err := r.ReceiveByte()
		if err != nil {
			return false, n, err
		}
		switch ev {
		case EventStop:
			return false, n, nil
		case EventStart:
			return true, n, nil
		}
		if !*ptrLoaded {
			r.ptr = b
			*ptrLoaded = true
		} else {
			dev.WriteRegister(r.ptr, b)
			r.ptr++
			n++
		}
		if err := r.AckByte(); err != nil {
			return false, n, err
		}
	}
}

// sendRun streams register bytes to the controller until it nacks.
func (r *Responder) sendRun(dev Device) (n int, err error) {
	for {
		b := dev.ReadRegister(r.ptr)
		r.ptr++
		acked, err := r.SendByte(b)
		if err != nil {
			return n, err
		}
		n++
		if !acked {
			return n, nil
		}
	}
}

// sampleBit waits for the clock to rise, reads the data line, then waits
// for the clock to fall. The data line is released first so a leftover
// acknowledgement never shadows the controller's bit.
func (r *Responder) sampleBit() (gpio.Level, error) {
	if err := r.sda.Release(); err != nil {
		return gpio.Low, err
	}
	if !waitLevel(r.scl, gpio.High, r.poll, r.opts.EdgeTimeout) {
		return gpio.Low, &EdgeTimeoutError{Op: "clock rise"}
	}
	bit := r.sda.Read()
	if !waitLevel(r.scl, gpio.Low, r.poll, r.opts.EdgeTimeout) {
		return gpio.Low, &EdgeTimeoutError{Op: "clock fall"}
	}
	return bit, nil
}

// emitBit waits for the clock to be low, sets the data line, then holds it
// stable across the next full clock pulse.
func (r *Responder) emitBit(bit gpio.Level) error {
	if !waitLevel(r.scl, gpio.Low, r.poll, r.opts.EdgeTimeout) {
		return &EdgeTimeoutError{Op: "clock fall"}
	}
	var err error
	if bit {
		err = r.sda.Release()
	} else {
		err = r.sda.DriveLow()
	}
	if err != nil {
		return err
	}
	if !waitLevel(r.scl, gpio.High, r.poll, r.opts.EdgeTimeout) {
		return &EdgeTimeoutError{Op: "clock rise"}
	}
	if !waitLevel(r.scl, gpio.Low, r.poll, r.opts.EdgeTimeout) {
		return &EdgeTimeoutError{Op: "clock fall"}
	}
	return nil
}

// firstBit resolves the ambiguity of the slot after an acknowledgement: a
// data bit holds the line steady across the clock-high phase, a STOP raises
// it and a repeated START drops it.
func (r *Responder) firstBit() (gpio.Level, Event, error) {
	if !waitLevel(r.scl, gpio.High, r.poll, r.opts.EdgeTimeout) {
		return gpio.Low, EventByte, &EdgeTimeoutError{Op: "clock rise"}
	}
	d0 := r.sda.Read()
	deadline := time.Now().Add(r.opts.EdgeTimeout)
	for {
		if r.scl.Read() == gpio.Low {
			return d0, EventByte, nil
		}
		if d := r.sda.Read(); d != d0 {
			if d == gpio.High {
				return gpio.Low, EventStop, nil
			}
			return gpio.Low, EventStart, nil
		}
		if time.Now().After(deadline) {
			return gpio.Low, EventByte, &EdgeTimeoutError{Op: "clock fall"}
		}
		time.Sleep(r.poll)
	}
}

// fault implements the soft-error policy: free the data line, count the
// failure and back off for ten bit periods once the threshold trips.
func (r *Responder) fault(err error) {
	_ = r.sda.Release()
	r.opts.Monitor.softError(err)
	r.failures++
	if r.failures >= r.opts.MaxFailures {
		r.failures = 0
		r.opts.Monitor.recovery()
		time.Sleep(10 * r.opts.BitPeriod)
	}
}
