// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package softi2ctest provides an in-memory open-drain bus for testing
// software I²C peers against each other in-process.
//
// A Net models one physical line with its pull-up: it reads high unless at
// least one attached Pin drives it low. Pins implement gpio.PinIO, so a
// controller goroutine and a responder goroutine can share a pair of nets
// exactly as two hosts share a pair of wires.
package softi2ctest

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"
)

// Net is one open-drain line with a pull-up.
type Net struct {
	name string

	mu   sync.Mutex
	pins []*Pin
	next int
}

// NewNet returns an unloaded net that reads high.
func NewNet(name string) *Net {
	return &Net{name: name}
}

// Level returns the wire level: low when any attached pin drives low, high
// otherwise.
func (n *Net) Level() gpio.Level {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.pins {
		p.mu.Lock()
		low := p.out && p.lvl == gpio.Low
		p.mu.Unlock()
		if low {
			return gpio.Low
		}
	}
	return gpio.High
}

// Pin attaches a new pin to the net. name is the consumer label, visible in
// errors and String.
func (n *Net) Pin(name string) *Pin {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := &Pin{net: n, name: name, num: n.next, pull: gpio.PullUp}
	n.next++
	n.pins = append(n.pins, p)
	return p
}

// Pin is one attachment point on a Net. It implements gpio.PinIO.
type Pin struct {
	net  *Net
	name string
	num  int

	mu   sync.Mutex
	out  bool
	lvl  gpio.Level
	pull gpio.Pull
}

func (p *Pin) String() string {
	return p.net.name + "/" + p.name
}

// Name implements pin.Pin.
func (p *Pin) Name() string {
	return p.name
}

// Number implements pin.Pin.
func (p *Pin) Number() int {
	return p.num
}

// Function implements pin.Pin.
func (p *Pin) Function() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.out {
		return "Out"
	}
	return "In"
}

// Halt implements conn.Resource. It stops driving the net.
func (p *Pin) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = false
	return nil
}

// In implements gpio.PinIn. The pin stops driving the net.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = false
	p.pull = pull
	return nil
}

// Read implements gpio.PinIn. It returns the wire level, not the driven
// level, as a real open-drain pad would.
func (p *Pin) Read() gpio.Level {
	return p.net.Level()
}

// WaitForEdge implements gpio.PinIn by polling the net.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	last := p.net.Level()
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if l := p.net.Level(); l != last {
			return true
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Microsecond)
	}
}

// Pull implements gpio.PinIn.
func (p *Pin) Pull() gpio.Pull {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

// DefaultPull implements gpio.PinIn.
func (p *Pin) DefaultPull() gpio.Pull {
	return gpio.PullUp
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = true
	p.lvl = l
	return nil
}

// PWM implements gpio.PinOut.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.New("softi2ctest: PWM is not supported")
}

var _ gpio.PinIO = &Pin{}
var _ pin.Pin = &Pin{}

// Bus bundles the two nets of an I²C link.
type Bus struct {
	SDA *Net
	SCL *Net
}

// NewBus returns an idle two-line bus.
func NewBus() *Bus {
	return &Bus{SDA: NewNet("SDA"), SCL: NewNet("SCL")}
}

// PinPair attaches one peer to the bus and returns its data and clock pins.
func (b *Bus) PinPair(consumer string) (sda, scl *Pin) {
	return b.SDA.Pin(consumer + "-sda"), b.SCL.Pin(consumer + "-scl")
}
