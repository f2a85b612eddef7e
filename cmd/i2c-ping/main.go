// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// i2c-ping exchanges NUL-terminated ASCII messages over the bit-banged
// link, one peer per host.
//
// The controller role writes "PING:<n>" and reads back the responder's
// "PONG:<timestamp-ms>", reporting the round-trip time. The responder role
// is built straight on the byte-layer primitives: framing is a NUL or the
// STOP condition, no register semantics involved.
package main

import (
	"bytes"
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
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const maxMessage = 32

func mainImpl() error {
	role := flag.String("role", "controller", "peer role: controller or responder")
	dataLine := flag.String("data-line", "17", "GPIO line of the data signal")
	clockLine := flag.String("clock-line", "27", "GPIO line of the clock signal")
	addr := flag.Uint("responder-address", 0x42, "7-bit responder address")
	period := flag.Duration("bit-period", time.Millisecond, "quarter clock phase duration")
	interval := flag.Duration("interval", 2*time.Second, "pause between pings (controller)")
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
	opts := softi2c.Opts{Addr: uint16(*addr), BitPeriod: *period}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	switch *role {
	case "controller":
		return pingController(ctx, sda, scl, &opts, *interval)
	case "responder":
		return pingResponder(ctx, sda, scl, &opts)
	default:
		return fmt.Errorf("unknown role %q", *role)
	}
}

func pingController(ctx context.Context, sda, scl gpio.PinIO, opts *softi2c.Opts, interval time.Duration) error {
	c, err := softi2c.NewController(sda, scl, opts)
	if err != nil {
		return err
	}
	defer c.Halt()
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return nil
		}
		msg := append([]byte(fmt.Sprintf("PING:%d", i)), 0)
		sent := time.Now()
		if err := c.Write(opts.Addr, msg); err != nil {
			log.Printf("ping failed: %v", err)
			time.Sleep(interval)
			continue
		}
		// Let the responder turn around and queue its reply.
		time.Sleep(50 * time.Millisecond)
		reply := make([]byte, maxMessage)
		if err := c.Read(opts.Addr, reply); err != nil {
			log.Printf("pong read failed: %v", err)
			time.Sleep(interval)
			continue
		}
		rtt := time.Since(sent)
		if n := bytes.IndexByte(reply, 0); n >= 0 {
			reply = reply[:n]
		}
		log.Printf("%s rtt=%s", reply, rtt.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func pingResponder(ctx context.Context, sda, scl gpio.PinIO, opts *softi2c.Opts) error {
	r, err := softi2c.NewResponder(sda, scl, opts)
	if err != nil {
		return err
	}
	defer r.Halt()
	var reply []byte
	for {
		if ctx.Err() != nil {
			return nil
		}
		read, err := r.Listen(ctx)
		if err != nil {
			if err == softi2c.ErrNoStart || err == softi2c.ErrNotAddressed {
				continue
			}
			if err == context.Canceled {
				return nil
			}
			log.Printf("listen: %v", err)
			continue
		}
		if read {
			// Stream the queued reply until the controller nacks.
			for _, b := range reply {
				acked, err := r.SendByte(b)
				if err != nil {
					log.Printf("send: %v", err)
					break
				}
				if !acked {
					break
				}
			}
			continue
		}
		msg, err := receiveMessage(r)
		if err != nil {
			log.Printf("receive: %v", err)
			continue
		}
		log.Printf("received %q", msg)
		reply = append([]byte(fmt.Sprintf("PONG:%d", time.Now().UnixNano()/int64(time.Millisecond))), 0)
	}
}

// receiveMessage reads bytes until a NUL terminator or the STOP condition.
func receiveMessage(r *softi2c.Responder) (string, error) {
	var buf []byte
	for len(buf) < maxMessage {
		b, ev, err := r.ReceiveByte()
		if err != nil {
			return "", err
		}
		if ev != softi2c.EventByte {
			break
		}
		if err := r.AckByte(); err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
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
		log.Fatalf("i2c-ping: %v", err)
	}
}
