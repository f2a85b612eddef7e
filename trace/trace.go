// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package trace records a ranging session and renders it as a PNG strip
// chart: distance over cycle index, with failed cycles marked along the
// bottom edge.
package trace

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/physic"
)

// Opts represents the options available for the chart.
type Opts struct {
	// Width and Height of the rendered image in pixels. Zero selects
	// 800x300.
	Width  int
	Height int
	// Min and Max clamp the vertical axis. Zero values select 100mm and
	// 2000mm.
	Min physic.Distance
	Max physic.Distance
}

type sample struct {
	dist physic.Distance
	ok   bool
}

// Recorder accumulates measurement cycles and renders them.
type Recorder struct {
	opts    Opts
	samples []sample
}

// New returns an empty recorder.
func New(opts *Opts) *Recorder {
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	if o.Width <= 0 {
		o.Width = 800
	}
	if o.Height <= 0 {
		o.Height = 300
	}
	if o.Min == 0 {
		o.Min = 100 * physic.MilliMetre
	}
	if o.Max == 0 {
		o.Max = 2000 * physic.MilliMetre
	}
	return &Recorder{opts: o}
}

// Add records one successful measurement cycle.
func (r *Recorder) Add(dist physic.Distance) {
	r.samples = append(r.samples, sample{dist: dist, ok: true})
}

// AddFailure records one failed cycle, kept in the chart as a gap with a
// tick mark.
func (r *Recorder) AddFailure() {
	r.samples = append(r.samples, sample{})
}

// Len returns the number of recorded cycles.
func (r *Recorder) Len() int {
	return len(r.samples)
}

// Render draws the chart.
func (r *Recorder) Render() (image.Image, error) {
	if len(r.samples) == 0 {
		return nil, errors.New("trace: no samples recorded")
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(f, &truetype.Options{Size: 12, Hinting: font.HintingFull})

	const margin = 36.0
	w, h := float64(r.opts.Width), float64(r.opts.Height)
	dc := gg.NewContext(r.opts.Width, r.opts.Height)
	dc.SetFontFace(face)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// Frame and axis labels.
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.SetLineWidth(1)
	dc.DrawRectangle(margin, margin/2, w-1.5*margin, h-1.5*margin)
	dc.Stroke()
	dc.DrawStringAnchored(fmt.Sprintf("%dmm", int(r.opts.Max/physic.MilliMetre)), margin-4, margin/2, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%dmm", int(r.opts.Min/physic.MilliMetre)), margin-4, h-margin, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%d cycles", len(r.samples)), w-margin/2, h-margin/4, 1, 0.5)

	// Distance polyline, broken across failed cycles.
	dc.SetRGB(0.1, 0.4, 0.8)
	dc.SetLineWidth(1.5)
	pen := false
	for i, s := range r.samples {
		if !s.ok {
			pen = false
			continue
		}
		x, y := r.plot(i, s.dist, w, h, margin)
		if pen {
			dc.LineTo(x, y)
		} else {
			dc.MoveTo(x, y)
		}
		pen = true
	}
	dc.Stroke()

	// Failure ticks along the bottom edge.
	dc.SetRGB(0.8, 0.1, 0.1)
	for i, s := range r.samples {
		if s.ok {
			continue
		}
		x, _ := r.plot(i, r.opts.Min, w, h, margin)
		dc.DrawLine(x, h-margin, x, h-margin+6)
		dc.Stroke()
	}
	return dc.Image(), nil
}

// WritePNG renders the chart and encodes it to w.
func (r *Recorder) WritePNG(w io.Writer) error {
	img, err := r.Render()
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// SavePNG renders the chart into the named file.
func (r *Recorder) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WritePNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *Recorder) plot(i int, d physic.Distance, w, h, margin float64) (x, y float64) {
	span := float64(r.opts.Max - r.opts.Min)
	frac := float64(d-r.opts.Min) / span
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	step := (w - 1.5*margin) / float64(maxInt(len(r.samples)-1, 1))
	x = margin + float64(i)*step
	y = h - margin - frac*(h-1.5*margin)
	return x, y
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
