// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

type lineState uint8

const (
	lineReleased lineState = iota
	lineLow
)

// Line is one open-drain bus line. It has exactly two states: released, in
// which the line is an input pulled high externally, and driven low. There
// is no driven-high state; "high" always means released.
//
// Each transition reconfigures the underlying GPIO line. The previous
// request is released by the pin implementation before the new one is
// issued, so a Line can flip between input and output indefinitely.
type Line struct {
	p     gpio.PinIO
	state lineState
}

// NewLine wraps p as an open-drain line and releases it.
func NewLine(p gpio.PinIO) (*Line, error) {
	l := &Line{p: p, state: lineLow}
	if err := l.Release(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Line) String() string {
	return l.p.Name()
}

// Release configures the line as an input with pull-up bias. The line floats
// to logical 1 unless the peer drives it low.
func (l *Line) Release() error {
	if l.state == lineReleased {
		return nil
	}
	if err := l.p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("softi2c: releasing %s: %w", l.p.Name(), err)
	}
	l.state = lineReleased
	return nil
}

// DriveLow configures the line as an output driven to 0.
func (l *Line) DriveLow() error {
	if l.state == lineLow {
		return nil
	}
	if err := l.p.Out(gpio.Low); err != nil {
		return fmt.Errorf("softi2c: driving %s low: %w", l.p.Name(), err)
	}
	l.state = lineLow
	return nil
}

// Read returns the observed logical level of the line.
func (l *Line) Read() gpio.Level {
	return l.p.Read()
}

// Halt releases the line and halts the underlying pin. Implements
// conn.Resource.
func (l *Line) Halt() error {
	err := l.Release()
	if hErr := l.p.Halt(); err == nil {
		err = hErr
	}
	return err
}

// Pin returns the wrapped pin.
func (l *Line) Pin() gpio.PinIO {
	return l.p
}
