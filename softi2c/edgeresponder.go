// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import (
	"context"
	"time"

	"periph.io/x/conn/v3/gpio"
)

type edgeState uint8

const (
	edgeIdle edgeState = iota
	edgeAddr
	edgeAddrAck
	edgeReg
	edgeRegAck
	edgeDataIn
	edgeDataInAck
	edgeDataOut
	edgeDataOutAck
)

// EdgeResponder is an alternative responder built as a pure bus-edge state
// machine: it continuously samples both lines and reacts to level
// transitions instead of block-waiting on individual clock edges. It never
// times out; a torn transfer is abandoned at the next START or STOP, which
// both resynchronize the machine from any state.
//
// Compared to Responder it burns more CPU (it polls at a fraction of the
// bit period even while idle) but it tolerates arbitrary controller-side
// pauses and handles repeated START for free.
type EdgeResponder struct {
	sda  *Line
	scl  *Line
	opts Opts
	poll time.Duration

	state     edgeState
	bits      int
	cur       byte
	read      bool
	ptr       uint8
	ptrLoaded bool
	ackPhase  int
	txBytes   int
}

// NewEdgeResponder requests the two pins as released open-drain lines and
// returns an edge-machine responder listening on opts.Addr.
func NewEdgeResponder(sda, scl gpio.PinIO, opts *Opts) (*EdgeResponder, error) {
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
	poll := o.BitPeriod / 16
	if poll < time.Microsecond {
		poll = time.Microsecond
	}
	return &EdgeResponder{sda: sdaLine, scl: sclLine, opts: o, poll: poll}, nil
}

func (r *EdgeResponder) String() string {
	return "softi2c.EdgeResponder{" + r.sda.String() + ", " + r.scl.String() + "}"
}

// Halt releases both lines and halts the pins. Implements conn.Resource.
func (r *EdgeResponder) Halt() error {
	err := r.sda.Halt()
	if sErr := r.scl.Halt(); err == nil {
		err = sErr
	}
	return err
}

// Serve samples the bus until ctx is cancelled, feeding every observed edge
// into the state machine and dev with the registers behind it.
func (r *EdgeResponder) Serve(ctx context.Context, dev Device) error {
	sclPrev := r.scl.Read()
	sdaPrev := r.sda.Read()
	r.state = edgeIdle
	for {
		if err := ctx.Err(); err != nil {
			_ = r.sda.Release()
			_ = r.scl.Release()
			return err
		}
		if r.state == edgeIdle {
			dev.Tick()
		}
		scl := r.scl.Read()
		sda := r.sda.Read()
		switch {
		case scl == gpio.High && sclPrev == gpio.High && sdaPrev == gpio.High && sda == gpio.Low:
			r.onStart()
		case scl == gpio.High && sclPrev == gpio.High && sdaPrev == gpio.Low && sda == gpio.High:
			r.onStop()
		case sclPrev == gpio.Low && scl == gpio.High:
			r.onRise(sda, dev)
		case sclPrev == gpio.High && scl == gpio.Low:
			r.onFall(dev)
		}
		sclPrev, sdaPrev = scl, sda
		time.Sleep(r.poll)
	}
}

func (r *EdgeResponder) onStart() {
	if r.state == edgeIdle {
		r.ptrLoaded = false
		r.txBytes = 0
	}
	r.state = edgeAddr
	r.bits = 0
	r.cur = 0
}

func (r *EdgeResponder) onStop() {
	if r.state != edgeIdle {
		r.opts.Monitor.transaction(r.read, r.txBytes)
	}
	r.state = edgeIdle
	_ = r.sda.Release()
}

func (r *EdgeResponder) onRise(sda gpio.Level, dev Device) {
	switch r.state {
	case edgeAddr, edgeReg, edgeDataIn:
		r.cur <<= 1
		if sda {
			r.cur |= 1
		}
		r.bits++
		if r.bits < 8 {
			return
		}
		switch r.state {
		case edgeAddr:
			if uint16(r.cur>>1) != r.opts.Addr {
				r.state = edgeIdle
				return
			}
			r.read = r.cur&1 == 1
			r.state = edgeAddrAck
			r.ackPhase = 0
		case edgeReg:
			r.ptr = r.cur
			r.ptrLoaded = true
			r.state = edgeRegAck
			r.ackPhase = 0
		case edgeDataIn:
			dev.WriteRegister(r.ptr, r.cur)
			r.ptr++
			r.txBytes++
			r.state = edgeDataInAck
			r.ackPhase = 0
		}
	case edgeDataOutAck:
		if sda == gpio.High {
			// Nack: the controller is done reading.
			r.opts.Monitor.transaction(true, r.txBytes)
			r.state = edgeIdle
			return
		}
		// Acked: the next byte starts at the coming falling edge.
		r.state = edgeDataOut
		r.bits = 0
	}
}

func (r *EdgeResponder) onFall(dev Device) {
	switch r.state {
	case edgeAddrAck, edgeRegAck, edgeDataInAck:
		if r.ackPhase == 0 {
			// Claim the acknowledgement slot; it is clocked by the pulse
			// that ends at the next falling edge.
			_ = r.sda.DriveLow()
			r.ackPhase = 1
			return
		}
		if r.state == edgeAddrAck && r.read {
			r.beginByteOut(dev)
			return
		}
		_ = r.sda.Release()
		if r.state == edgeAddrAck && !r.ptrLoaded {
			r.state = edgeReg
		} else {
			r.state = edgeDataIn
		}
		r.bits = 0
		r.cur = 0
	case edgeDataOut:
		if r.bits == 0 {
			r.beginByteOut(dev)
			return
		}
		if r.bits < 8 {
			r.driveBit()
			return
		}
		// All eight bits clocked; free the line for the controller's
		// acknowledgement.
		_ = r.sda.Release()
		r.state = edgeDataOutAck
	}
}

// beginByteOut fetches the next register byte and puts its first bit on the
// wire.
func (r *EdgeResponder) beginByteOut(dev Device) {
	r.cur = dev.ReadRegister(r.ptr)
	r.ptr++
	r.txBytes++
	r.state = edgeDataOut
	r.bits = 0
	r.driveBit()
}

func (r *EdgeResponder) driveBit() {
	if r.cur&(0x80>>uint(r.bits)) != 0 {
		_ = r.sda.Release()
	} else {
		_ = r.sda.DriveLow()
	}
	r.bits++
}
