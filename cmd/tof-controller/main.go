// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// tof-controller drives a VL53L0X-class ranging sensor over a bit-banged
// I²C link on two GPIO lines.
//
// It identifies the device, then runs a fixed number of single-shot
// measurement cycles at the configured frequency and reports the success
// rate. The live distance can be watched with -bar and the whole session
// saved as a PNG strip chart with -plot.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/JASS-2025-mini/tof-virt/rangebar"
	"github.com/JASS-2025-mini/tof-virt/softi2c"
	"github.com/JASS-2025-mini/tof-virt/trace"
	"github.com/JASS-2025-mini/tof-virt/vl53l0x"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

func mainImpl() error {
	dataLine := flag.String("data-line", "23", "GPIO line of the data signal")
	clockLine := flag.String("clock-line", "24", "GPIO line of the clock signal")
	addr := flag.Uint("responder-address", uint(vl53l0x.DefaultAddr), "7-bit responder address")
	period := flag.Duration("bit-period", 2*time.Millisecond, "quarter clock phase duration")
	freq := flag.Float64("measurement-frequency", 5, "measurement cycles per second")
	maxMeasurements := flag.Int("max-measurements", 500, "cycles to run before exiting")
	gap := flag.Duration("write-to-read-gap", 0, "pause between register write and read, 0 for a twentieth of the cycle period")
	maxFailures := flag.Int("max-consecutive-failures", 2, "transaction errors before bus recovery")
	bar := flag.Bool("bar", false, "render the live distance as a terminal bar")
	plot := flag.String("plot", "", "write a PNG strip chart of the session to this file")
	scan := flag.Bool("scan", false, "scan the bus for responders and exit")
	flag.Parse()
	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Arg(0))
	}
	if *freq <= 0 {
		return errors.New("measurement-frequency must be positive")
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	sda := pinByName(*dataLine)
	if sda == nil {
		return fmt.Errorf("no GPIO line %q", *dataLine)
	}
	scl := pinByName(*clockLine)
	if scl == nil {
		return fmt.Errorf("no GPIO line %q", *clockLine)
	}

	c, err := softi2c.NewController(sda, scl, &softi2c.Opts{
		Addr:        uint16(*addr),
		BitPeriod:   *period,
		MaxFailures: *maxFailures,
		Monitor: softi2c.Monitor{
			SoftError: func(err error) { log.Printf("soft error: %v", err) },
			Recovery:  func() { log.Printf("bus recovery") },
		},
	})
	if err != nil {
		return err
	}
	defer c.Halt()

	if *scan {
		for _, a := range c.Scan() {
			log.Printf("found responder at %#02x", a)
		}
		return nil
	}

	cyclePeriod := time.Duration(float64(time.Second) / *freq)
	if *gap <= 0 {
		*gap = cyclePeriod / 20
	}
	bus := softi2c.NewBus(c, *gap)

	d, err := vl53l0x.NewI2C(bus, uint16(*addr), nil)
	if err != nil {
		return err
	}
	model, revision, err := d.Identify()
	if err != nil {
		return err
	}
	log.Printf("found %s: model %#02x revision %#02x", d, model, revision)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var display *rangebar.Dev
	if *bar {
		display = rangebar.New(nil)
		defer display.Halt()
	}
	var recorder *trace.Recorder
	if *plot != "" {
		recorder = trace.New(nil)
	}

	ticker := time.NewTicker(cyclePeriod)
	defer ticker.Stop()
	ok := 0
	cycles := 0
loop:
	for cycles < *maxMeasurements {
		select {
		case <-stop:
			log.Printf("interrupted")
			break loop
		case <-ticker.C:
		}
		cycles++
		dist, err := d.Range()
		if err != nil {
			log.Printf("cycle %d/%d: %v", cycles, *maxMeasurements, err)
			if recorder != nil {
				recorder.AddFailure()
			}
			continue
		}
		ok++
		if display != nil {
			display.Render(dist)
		} else {
			log.Printf("cycle %d/%d: %s", cycles, *maxMeasurements, dist)
		}
		if recorder != nil {
			recorder.Add(dist)
		}
	}

	if cycles > 0 {
		log.Printf("%d/%d cycles succeeded (%.1f%%)", ok, cycles, float64(ok)*100/float64(cycles))
	}
	if recorder != nil && recorder.Len() > 0 {
		if err := recorder.SavePNG(*plot); err != nil {
			return err
		}
		log.Printf("wrote %s", *plot)
	}
	return nil
}

// pinByName resolves a line by registry name, accepting bare numbers as
// "GPIO<n>".
func pinByName(name string) gpio.PinIO {
	if p := gpioreg.ByName(name); p != nil {
		return p
	}
	if _, err := strconv.Atoi(name); err == nil {
		return gpioreg.ByName("GPIO" + name)
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		log.Fatalf("tof-controller: %v", err)
	}
}
