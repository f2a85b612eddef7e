// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// tof-responder emulates a VL53L0X ranging sensor on two GPIO lines.
//
// It answers on the configured 7-bit address, serves the emulated register
// file and simulates the conversion latency. Point a tof-controller at the
// same two lines (crossed over on the other host) and it will see a real
// enough sensor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/JASS-2025-mini/tof-virt/softi2c"
	"github.com/JASS-2025-mini/tof-virt/vl53l0x"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

func mainImpl() error {
	dataLine := flag.String("data-line", "22", "GPIO line of the data signal")
	clockLine := flag.String("clock-line", "23", "GPIO line of the clock signal")
	addr := flag.Uint("responder-address", uint(softi2c.DefaultAddr), "7-bit responder address")
	period := flag.Duration("bit-period", 2*time.Millisecond, "quarter clock phase duration")
	maxFailures := flag.Int("max-consecutive-failures", 2, "soft errors before the extended idle pause")
	engine := flag.String("engine", "polled", "responder engine: polled or edge")
	latency := flag.Duration("conversion-latency", vl53l0x.DefaultConversionLatency, "simulated conversion time")
	seed := flag.Int64("seed", 0, "distance walk seed, 0 for random")
	verbose := flag.Bool("v", false, "log every transaction")
	flag.Parse()
	if flag.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Arg(0))
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

	opts := softi2c.Opts{
		Addr:        uint16(*addr),
		BitPeriod:   *period,
		MaxFailures: *maxFailures,
		Monitor: softi2c.Monitor{
			SoftError: func(err error) { log.Printf("soft error: %v", err) },
			Recovery:  func() { log.Printf("extended idle pause") },
		},
	}
	if *verbose {
		opts.Monitor.Transaction = func(read bool, n int) {
			dir := "write"
			if read {
				dir = "read"
			}
			log.Printf("%s transfer, %d data bytes", dir, n)
		}
	}

	emu := vl53l0x.NewEmulator(&vl53l0x.EmulatorOpts{
		ConversionLatency: *latency,
		Seed:              *seed,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	log.Printf("emulating VL53L0X at %#02x, data=%s clock=%s, bit period %s (%s clock), %s engine",
		*addr, sda, scl, *period, frequency(*period), *engine)

	var err error
	switch *engine {
	case "polled":
		var r *softi2c.Responder
		if r, err = softi2c.NewResponder(sda, scl, &opts); err != nil {
			return err
		}
		defer r.Halt()
		err = r.Serve(ctx, emu)
	case "edge":
		var r *softi2c.EdgeResponder
		if r, err = softi2c.NewEdgeResponder(sda, scl, &opts); err != nil {
			return err
		}
		defer r.Halt()
		err = r.Serve(ctx, emu)
	default:
		return fmt.Errorf("unknown engine %q", *engine)
	}
	if err == context.Canceled {
		log.Printf("shutting down, last distance %s", emu.Distance())
		return nil
	}
	return err
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

// frequency reports the full-cycle clock rate of a bit period, for logs.
func frequency(period time.Duration) physic.Frequency {
	if period <= 0 {
		return 0
	}
	return physic.Frequency(time.Second/(4*period)) * physic.Hertz
}

func main() {
	if err := mainImpl(); err != nil {
		log.Fatalf("tof-responder: %v", err)
	}
}
