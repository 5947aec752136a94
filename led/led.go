// Package led drives a status LED through a small blink command language.
// A command describes a timed on/off pattern; the blinker executes one
// command at a time in the background and replaces it on the next Run.
package led

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Output is the physical LED. The production implementation is a GPIO pin;
// tests substitute a recording fake.
type Output interface {
	Set(on bool) error
}

// Cmd is one blink program. Programs compose: Many sequences sub-programs,
// Repeat runs one a fixed number of times, Loop runs one until cancelled.
type Cmd interface {
	// run executes the program, honoring ctx cancellation between steps.
	run(ctx context.Context, out Output) error
}

// On switches the LED on for the given duration.
type On time.Duration

// Off switches the LED off for the given duration.
type Off time.Duration

// Many executes its sub-programs in order.
type Many []Cmd

// Repeat executes Cmd N times.
type Repeat struct {
	N   int
	Cmd Cmd
}

// Loop executes Cmd until the program is cancelled.
type Loop struct {
	Cmd Cmd
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c On) run(ctx context.Context, out Output) error {
	if err := out.Set(true); err != nil {
		return err
	}
	return sleep(ctx, time.Duration(c))
}

func (c Off) run(ctx context.Context, out Output) error {
	if err := out.Set(false); err != nil {
		return err
	}
	return sleep(ctx, time.Duration(c))
}

func (c Many) run(ctx context.Context, out Output) error {
	for _, sub := range c {
		if err := sub.run(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

func (c Repeat) run(ctx context.Context, out Output) error {
	for i := 0; i < c.N; i++ {
		if err := c.Cmd.run(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

func (c Loop) run(ctx context.Context, out Output) error {
	for {
		if err := c.Cmd.run(ctx, out); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Blinker owns the LED and runs at most one blink program at a time. Run and
// Stop are safe to call from any goroutine.
type Blinker struct {
	out Output

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBlinker creates a blinker over the given output with the LED off.
func NewBlinker(out Output) (*Blinker, error) {
	if out == nil {
		return nil, fmt.Errorf("led output is required")
	}
	if err := out.Set(false); err != nil {
		return nil, fmt.Errorf("initializing led: %w", err)
	}
	return &Blinker{out: out}, nil
}

// Run starts executing cmd in the background, cancelling and waiting out any
// program already running. The LED is left in whatever state the program's
// last step set.
func (b *Blinker) Run(cmd Cmd) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done

	go func() {
		defer close(done)
		if err := cmd.run(ctx, b.out); err != nil && ctx.Err() == nil {
			log.Printf("Blink program failed: %v", err)
		}
	}()
}

// Stop cancels the running program, if any, and switches the LED off.
func (b *Blinker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	if err := b.out.Set(false); err != nil {
		log.Printf("Failed to switch led off: %v", err)
	}
}

// On cancels the running program and leaves the LED on steadily.
func (b *Blinker) On() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	if err := b.out.Set(true); err != nil {
		log.Printf("Failed to switch led on: %v", err)
	}
}

func (b *Blinker) stopLocked() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel = nil
	b.done = nil
}

// gpioOutput adapts a periph GPIO pin to the Output interface.
type gpioOutput struct {
	pin gpio.PinOut
}

func (g gpioOutput) Set(on bool) error {
	return g.pin.Out(gpio.Level(on))
}

// OpenPin resolves a GPIO pin by name (e.g. "GPIO27") as an LED output.
func OpenPin(name string) (Output, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return gpioOutput{pin: pin}, nil
}
