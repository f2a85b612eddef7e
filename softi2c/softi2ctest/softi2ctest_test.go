// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2ctest

import (
	"testing"

	"periph.io/x/conn/v3/gpio"
)

func TestNetPullUp(t *testing.T) {
	n := NewNet("SDA")
	if n.Level() != gpio.High {
		t.Fatal("unloaded net must read high")
	}
	p := n.Pin("peer")
	if p.Read() != gpio.High {
		t.Fatal("released pin must read high")
	}
}

func TestNetDriveLow(t *testing.T) {
	n := NewNet("SDA")
	a := n.Pin("a")
	b := n.Pin("b")
	if err := a.Out(gpio.Low); err != nil {
		t.Fatal(err)
	}
	if b.Read() != gpio.Low {
		t.Fatal("driven net must read low on every pin")
	}
	if a.Read() != gpio.Low {
		t.Fatal("driving pin reads the wire, not its latch")
	}
	if err := a.In(gpio.PullUp, gpio.NoEdge); err != nil {
		t.Fatal(err)
	}
	if b.Read() != gpio.High {
		t.Fatal("released net must float back high")
	}
}

func TestNetWiredAnd(t *testing.T) {
	n := NewNet("SCL")
	a := n.Pin("a")
	b := n.Pin("b")
	c := n.Pin("c")
	_ = a.Out(gpio.Low)
	_ = b.Out(gpio.Low)
	if c.Read() != gpio.Low {
		t.Fatal("want low with two drivers")
	}
	_ = a.In(gpio.PullUp, gpio.NoEdge)
	if c.Read() != gpio.Low {
		t.Fatal("want low while one driver remains")
	}
	_ = b.Halt()
	if c.Read() != gpio.High {
		t.Fatal("want high after the last driver halts")
	}
}

func TestPinMetadata(t *testing.T) {
	b := NewBus()
	sda, scl := b.PinPair("controller")
	if sda.Name() != "controller-sda" || scl.Name() != "controller-scl" {
		t.Fatalf("unexpected names %q, %q", sda.Name(), scl.Name())
	}
	if sda.String() != "SDA/controller-sda" {
		t.Fatalf("unexpected String %q", sda.String())
	}
	if sda.Function() != "In" {
		t.Fatalf("fresh pin function = %q, want In", sda.Function())
	}
	_ = sda.Out(gpio.Low)
	if sda.Function() != "Out" {
		t.Fatalf("driving pin function = %q, want Out", sda.Function())
	}
	if sda.DefaultPull() != gpio.PullUp {
		t.Fatal("bus lines default to pull-up")
	}
	if err := sda.PWM(gpio.DutyHalf, 0); err == nil {
		t.Fatal("PWM must not be supported")
	}
}
