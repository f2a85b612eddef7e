// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JASS-2025-mini/tof-virt/softi2c"
	"github.com/JASS-2025-mini/tof-virt/softi2c/softi2ctest"
	"periph.io/x/conn/v3/gpio"
)

const (
	testAddr   = 0x29
	testPeriod = 500 * time.Microsecond
	testGap    = 5 * time.Millisecond
)

// scratchDevice is a plain 256-byte register file with no side effects. The
// mutex only exists so tests can inspect it while a responder goroutine is
// serving.
type scratchDevice struct {
	mu    sync.Mutex
	regs  [256]byte
	ticks int
}

func (d *scratchDevice) ReadRegister(reg uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

func (d *scratchDevice) WriteRegister(reg, value uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[reg] = value
}

func (d *scratchDevice) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks++
}

func (d *scratchDevice) get(reg uint8) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

func (d *scratchDevice) set(reg uint8, value byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[reg] = value
}

type responderEngine interface {
	Serve(ctx context.Context, dev softi2c.Device) error
	Halt() error
}

// startLink wires a controller and a responder of the requested kind to an
// in-memory bus and starts serving dev. Everything is torn down with the
// test.
func startLink(t *testing.T, kind string, dev softi2c.Device) (*softi2c.Controller, *softi2ctest.Bus) {
	t.Helper()
	b := softi2ctest.NewBus()
	csda, cscl := b.PinPair("controller")
	rsda, rscl := b.PinPair("responder")
	opts := &softi2c.Opts{Addr: testAddr, BitPeriod: testPeriod}

	c, err := softi2c.NewController(csda, cscl, opts)
	if err != nil {
		t.Fatal(err)
	}
	var r responderEngine
	switch kind {
	case "polled":
		r, err = softi2c.NewResponder(rsda, rscl, opts)
	case "edge":
		r, err = softi2c.NewEdgeResponder(rsda, rscl, opts)
	default:
		t.Fatalf("unknown engine %q", kind)
	}
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Serve(ctx, dev)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = r.Halt()
		_ = c.Halt()
	})
	// Let the responder reach its start-detection loop before the first
	// transfer.
	time.Sleep(20 * time.Millisecond)
	return c, b
}

func engines(t *testing.T, f func(t *testing.T, kind string)) {
	for _, kind := range []string{"polled", "edge"} {
		kind := kind
		t.Run(kind, func(t *testing.T) { f(t, kind) })
	}
}

func TestScratchRoundTrip(t *testing.T) {
	engines(t, func(t *testing.T, kind string) {
		dev := &scratchDevice{}
		c, _ := startLink(t, kind, dev)

		if err := c.Write(testAddr, []byte{0x42, 0xA5}); err != nil {
			t.Fatal(err)
		}
		var got [1]byte
		if err := c.WriteRead(testAddr, []byte{0x42}, got[:], testGap); err != nil {
			t.Fatal(err)
		}
		if got[0] != 0xA5 {
			t.Fatalf("read back %#02x, want 0xA5", got[0])
		}
	})
}

func TestMultiByteWriteAutoIncrement(t *testing.T) {
	engines(t, func(t *testing.T, kind string) {
		dev := &scratchDevice{}
		c, _ := startLink(t, kind, dev)

		if err := c.Write(testAddr, []byte{0x10, 0x0A, 0x0B, 0x0C}); err != nil {
			t.Fatal(err)
		}
		// Let the responder retire the STOP before peeking.
		time.Sleep(20 * time.Millisecond)
		for i, want := range []byte{0x0A, 0x0B, 0x0C} {
			if got := dev.get(uint8(0x10 + i)); got != want {
				t.Fatalf("reg %#02x = %#02x, want %#02x", 0x10+i, got, want)
			}
		}
	})
}

func TestMultiByteReadAutoIncrement(t *testing.T) {
	engines(t, func(t *testing.T, kind string) {
		dev := &scratchDevice{}
		dev.set(0xC0, 0xEE)
		dev.set(0xC2, 0x10)
		c, _ := startLink(t, kind, dev)

		var got [3]byte
		if err := c.WriteRead(testAddr, []byte{0xC0}, got[:], testGap); err != nil {
			t.Fatal(err)
		}
		if got != [3]byte{0xEE, 0x00, 0x10} {
			t.Fatalf("read %#02x, want [0xEE 0x00 0x10]", got)
		}
	})
}

func TestPointerWrapsAt256(t *testing.T) {
	engines(t, func(t *testing.T, kind string) {
		dev := &scratchDevice{}
		dev.set(0xFF, 0x55)
		dev.set(0x00, 0x66)
		c, _ := startLink(t, kind, dev)

		var got [2]byte
		if err := c.WriteRead(testAddr, []byte{0xFF}, got[:], testGap); err != nil {
			t.Fatal(err)
		}
		if got != [2]byte{0x55, 0x66} {
			t.Fatalf("read %#02x, want [0x55 0x66]", got)
		}
	})
}

func TestPointerCarryOver(t *testing.T) {
	engines(t, func(t *testing.T, kind string) {
		dev := &scratchDevice{}
		dev.set(0x21, 0x77)
		c, _ := startLink(t, kind, dev)

		// The write loads pointer 0x20 and moves one data byte, leaving the
		// pointer at 0x21.
		if err := c.Write(testAddr, []byte{0x20, 0x11}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(testGap)
		// A bare read without a pointer write must continue from there.
		var got [1]byte
		if err := c.Read(testAddr, got[:]); err != nil {
			t.Fatal(err)
		}
		if got[0] != 0x77 {
			t.Fatalf("read %#02x, want 0x77", got[0])
		}
	})
}

func TestWrongAddressIgnored(t *testing.T) {
	engines(t, func(t *testing.T, kind string) {
		dev := &scratchDevice{}
		dev.set(0xC0, 0xEE)
		c, _ := startLink(t, kind, dev)

		if err := c.Write(0x2A, []byte{0xC0}); err != softi2c.ErrNoDevice {
			t.Fatalf("write to a foreign address returned %v, want ErrNoDevice", err)
		}
		// The responder must still answer on its own address afterwards.
		var got [1]byte
		if err := c.WriteRead(testAddr, []byte{0xC0}, got[:], testGap); err != nil {
			t.Fatal(err)
		}
		if got[0] != 0xEE {
			t.Fatalf("read %#02x, want 0xEE", got[0])
		}
	})
}

func TestRecoveryAfterTornTransfer(t *testing.T) {
	engines(t, func(t *testing.T, kind string) {
		dev := &scratchDevice{}
		dev.set(0xC0, 0xEE)
		c, b := startLink(t, kind, dev)

		if err := c.Write(testAddr, []byte{0x30, 0x01}); err != nil {
			t.Fatal(err)
		}

		// A rogue peer emits a START and then abandons the bus, leaving the
		// responder waiting mid-frame.
		rogueSDA, _ := b.PinPair("rogue")
		if err := rogueSDA.Out(gpio.Low); err != nil {
			t.Fatal(err)
		}
		time.Sleep(60 * time.Millisecond)
		if err := rogueSDA.In(gpio.PullUp, gpio.NoEdge); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)

		// A fresh transaction must succeed.
		var got [1]byte
		if err := c.WriteRead(testAddr, []byte{0xC0}, got[:], testGap); err != nil {
			t.Fatal(err)
		}
		if got[0] != 0xEE {
			t.Fatalf("read %#02x, want 0xEE", got[0])
		}
	})
}

func TestNoResponder(t *testing.T) {
	b := softi2ctest.NewBus()
	sda, scl := b.PinPair("controller")
	c, err := softi2c.NewController(sda, scl, &softi2c.Opts{Addr: testAddr, BitPeriod: 50 * time.Microsecond})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Halt()
	if err := c.Write(testAddr, []byte{0x00}); err != softi2c.ErrNoDevice {
		t.Fatalf("write on an empty bus returned %v, want ErrNoDevice", err)
	}
	if err := c.Read(testAddr, make([]byte, 1)); err != softi2c.ErrNoDevice {
		t.Fatalf("read on an empty bus returned %v, want ErrNoDevice", err)
	}
	if found := c.Scan(); len(found) != 0 {
		t.Fatalf("scan on an empty bus found %v", found)
	}
}

func TestMonitorEvents(t *testing.T) {
	b := softi2ctest.NewBus()
	csda, cscl := b.PinPair("controller")

	var mu sync.Mutex
	var softErrors int
	var recoveries int
	opts := &softi2c.Opts{
		Addr:        testAddr,
		BitPeriod:   50 * time.Microsecond,
		MaxFailures: 2,
		Monitor: softi2c.Monitor{
			SoftError: func(error) { mu.Lock(); softErrors++; mu.Unlock() },
			Recovery:  func() { mu.Lock(); recoveries++; mu.Unlock() },
		},
	}
	c, err := softi2c.NewController(csda, cscl, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Halt()

	// Two consecutive failures must trip one recovery.
	_ = c.Write(testAddr, []byte{0x00})
	_ = c.Write(testAddr, []byte{0x00})
	mu.Lock()
	defer mu.Unlock()
	if softErrors != 2 {
		t.Fatalf("soft errors = %d, want 2", softErrors)
	}
	if recoveries != 1 {
		t.Fatalf("recoveries = %d, want 1", recoveries)
	}
}

func TestByteStreamListen(t *testing.T) {
	b := softi2ctest.NewBus()
	csda, cscl := b.PinPair("controller")
	rsda, rscl := b.PinPair("responder")
	opts := &softi2c.Opts{Addr: 0x42, BitPeriod: testPeriod}

	c, err := softi2c.NewController(csda, cscl, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Halt()
	r, err := softi2c.NewResponder(rsda, rscl, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Halt()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	type result struct {
		msg string
		err error
	}
	got := make(chan result, 1)
	go func() {
		for {
			read, err := r.Listen(ctx)
			if err == softi2c.ErrNoStart || err == softi2c.ErrNotAddressed {
				continue
			}
			if err != nil {
				got <- result{err: err}
				return
			}
			if read {
				continue
			}
			var buf []byte
			for {
				b, ev, err := r.ReceiveByte()
				if err != nil {
					got <- result{err: err}
					return
				}
				if ev != softi2c.EventByte {
					break
				}
				if err := r.AckByte(); err != nil {
					got <- result{err: err}
					return
				}
				if b == 0 {
					break
				}
				buf = append(buf, b)
			}
			got <- result{msg: string(buf)}
			return
		}
	}()

	// Give the listener a moment to reach its start-detection loop.
	time.Sleep(20 * time.Millisecond)
	if err := c.Write(0x42, append([]byte("PING:7"), 0)); err != nil {
		t.Fatal(err)
	}
	select {
	case res := <-got:
		if res.err != nil {
			t.Fatal(res.err)
		}
		if res.msg != "PING:7" {
			t.Fatalf("received %q, want PING:7", res.msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("responder never delivered the message")
	}
}

func TestDeviceTickRunsWhileIdle(t *testing.T) {
	dev := &scratchDevice{}
	startLink(t, "polled", dev)
	time.Sleep(50 * time.Millisecond)
	dev.mu.Lock()
	ticks := dev.ticks
	dev.mu.Unlock()
	if ticks == 0 {
		t.Fatal("device tick must run from the idle poll")
	}
}
