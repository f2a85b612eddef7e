// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vl53l0x

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddr is the device's fixed 7-bit I²C address.
const DefaultAddr uint16 = 0x29

// Opts holds the measurement timing of the driver.
type Opts struct {
	// ConversionWait is slept after the start strobe before the status is
	// polled. Zero selects the nominal conversion latency.
	ConversionWait time.Duration
	// PollTimeout bounds the status poll that follows ConversionWait.
	// Zero selects 150ms.
	PollTimeout time.Duration
	// PollInterval is the delay between status reads. Zero selects 5ms.
	PollInterval time.Duration
}

// DefaultOpts matches the single-shot timing of the datasheet.
var DefaultOpts = Opts{
	ConversionWait: DefaultConversionLatency,
	PollTimeout:    150 * time.Millisecond,
	PollInterval:   5 * time.Millisecond,
}

// Dev is a handle to a VL53L0X on an I²C bus. Its methods are safe for
// concurrent use.
type Dev struct {
	d    *i2c.Dev
	opts Opts
	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewI2C opens the device on b and verifies its model identifier. The Opts
// can be nil.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.ConversionWait <= 0 {
		o.ConversionWait = DefaultConversionLatency
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultOpts.PollTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultOpts.PollInterval
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, opts: o}
	model, err := d.readReg(regIdentificationModelID)
	if err != nil {
		return nil, err
	}
	if model != ModelID {
		return nil, &IdentificationError{Got: model}
	}
	return d, nil
}

func (d *Dev) String() string {
	return "VL53L0X{" + d.d.String() + "}"
}

// Identify reads the model and revision identifiers.
func (d *Dev) Identify() (model, revision byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if model, err = d.readReg(regIdentificationModelID); err != nil {
		return 0, 0, err
	}
	if revision, err = d.readReg(regIdentificationRevisionID); err != nil {
		return 0, 0, err
	}
	return model, revision, nil
}

// Range performs one single-shot measurement: strobe SYSRANGE_START, wait
// out the conversion, consume the data-ready status and read the 16-bit
// big-endian distance.
func (d *Dev) Range() (physic.Distance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rangeLocked()
}

func (d *Dev) rangeLocked() (physic.Distance, error) {
	if err := d.writeReg(regSysrangeStart, 0x01); err != nil {
		return 0, err
	}
	time.Sleep(d.opts.ConversionWait)

	// The read that observes data-ready also clears it on the device.
	deadline := time.Now().Add(d.opts.PollTimeout)
	for {
		status, err := d.readReg(regResultInterruptStatus)
		if err != nil {
			return 0, err
		}
		if status == interruptDataReady {
			break
		}
		if time.Now().After(deadline) {
			return 0, &RangeTimeoutError{}
		}
		time.Sleep(d.opts.PollInterval)
	}

	rangeStatus, err := d.readReg(regResultRangeStatus)
	if err != nil {
		return 0, err
	}
	if rangeStatus != 0x00 {
		return 0, &RangeStatusError{Status: rangeStatus}
	}

	var raw [2]byte
	if err := d.d.Tx([]byte{regResultRangeValue}, raw[:]); err != nil {
		return 0, err
	}
	mm := uint16(raw[0])<<8 | uint16(raw[1])
	return physic.Distance(mm) * physic.MilliMetre, nil
}

// RangeContinuous performs a measurement every interval and delivers the
// results on the returned channel. Failed cycles are skipped. It is the
// caller's responsibility to call Halt when done.
func (d *Dev) RangeContinuous(interval time.Duration) (<-chan physic.Distance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("vl53l0x: continuous ranging already running")
	}
	d.stop = make(chan struct{})
	out := make(chan physic.Distance)
	d.wg.Add(1)
	go func(stop chan struct{}) {
		defer d.wg.Done()
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				d.mu.Lock()
				dist, err := d.rangeLocked()
				d.mu.Unlock()
				if err != nil {
					continue
				}
				select {
				case out <- dist:
				case <-stop:
					return
				}
			}
		}
	}(d.stop)
	return out, nil
}

// Halt stops a RangeContinuous in progress. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

func (d *Dev) readReg(reg byte) (byte, error) {
	var r [1]byte
	if err := d.d.Tx([]byte{reg}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (d *Dev) writeReg(reg, value byte) error {
	return d.d.Tx([]byte{reg, value}, nil)
}
