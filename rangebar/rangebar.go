// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rangebar renders a distance reading as a colored bar on the
// terminal using ANSI color codes.
//
// Useful to watch a ranging sensor live without plotting anything: the bar
// length tracks the distance and its color slides from red (near) to green
// (far).
package rangebar

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/physic"
)

// Opts represents the options available for the bar.
type Opts struct {
	// Width is the bar length in terminal cells. Zero selects 40.
	Width int
	// Min and Max span the rendered range. Zero values select 100mm and
	// 2000mm.
	Min physic.Distance
	Max physic.Distance
	// Palette maps colors to ANSI codes. Nil selects ansi256.Default.
	Palette *ansi256.Palette
}

// Dev draws distance bars to the console.
type Dev struct {
	w       io.Writer
	width   int
	min     physic.Distance
	max     physic.Distance
	palette ansi256.Palette

	buf bytes.Buffer
}

// New returns a Dev that draws to stdout.
func New(opts *Opts) *Dev {
	return NewWriter(colorable.NewColorableStdout(), opts)
}

// NewWriter returns a Dev that draws to w.
func NewWriter(w io.Writer, opts *Opts) *Dev {
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	if o.Width <= 0 {
		o.Width = 40
	}
	if o.Min == 0 {
		o.Min = 100 * physic.MilliMetre
	}
	if o.Max == 0 {
		o.Max = 2000 * physic.MilliMetre
	}
	p := o.Palette
	if p == nil {
		p = ansi256.Default
	}
	return &Dev{w: w, width: o.Width, min: o.Min, max: o.Max, palette: *p}
}

func (d *Dev) String() string {
	return "RangeBar"
}

// Halt implements conn.Resource. It resets the terminal colors and moves to
// a fresh line.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\033[0m\n"))
	return err
}

// Render redraws the bar in place for the given distance. Out-of-span
// distances are clamped to the bar ends.
func (d *Dev) Render(dist physic.Distance) error {
	frac := d.fraction(dist)
	filled := int(frac * float64(d.width))
	c := barColor(frac)

	d.buf.Reset()
	d.buf.WriteString("\r\033[0m")
	for i := 0; i < d.width; i++ {
		if i < filled {
			d.buf.WriteString(d.palette.Block(c))
		} else {
			d.buf.WriteString("\033[0m ")
		}
	}
	fmt.Fprintf(&d.buf, "\033[0m %4dmm ", int(dist/physic.MilliMetre))
	_, err := d.buf.WriteTo(d.w)
	return err
}

func (d *Dev) fraction(dist physic.Distance) float64 {
	if dist <= d.min {
		return 0
	}
	if dist >= d.max {
		return 1
	}
	return float64(dist-d.min) / float64(d.max-d.min)
}

// barColor slides from red at the near end to green at the far end.
func barColor(frac float64) color.NRGBA {
	r := uint8(255 * (1 - frac))
	g := uint8(255 * frac)
	return color.NRGBA{R: r, G: g, B: 0, A: 255}
}

var _ fmt.Stringer = &Dev{}
