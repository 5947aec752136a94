// Package button turns GPIO push buttons into discrete commands.
package button

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Command identifies which button was pressed.
type Command int

const (
	Shutdown Command = iota
	VolumeUp
	VolumeDown
)

func (c Command) String() string {
	switch c {
	case Shutdown:
		return "shutdown"
	case VolumeUp:
		return "volume-up"
	case VolumeDown:
		return "volume-down"
	default:
		return "unknown"
	}
}

// DefaultPollInterval is the pause between button level samples. It doubles
// as the debounce window: one press yields one command.
const DefaultPollInterval = 25 * time.Millisecond

// Input is one sampled button line. Pressed buttons read true. The production
// implementation is a GPIO pin with pull-up; tests substitute fakes.
type Input interface {
	Read() (bool, error)
}

// binding pairs a line with the command it emits.
type binding struct {
	input   Input
	cmd     Command
	pressed bool
}

// Watcher polls a set of button lines and emits a command on each falling
// edge to pressed. Like the tag watcher it is edge-triggered: holding a
// button emits one command.
type Watcher struct {
	mu       sync.Mutex
	bindings []*binding
	interval time.Duration

	events chan Command
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher creates a button watcher with no bindings. Bind lines before
// calling Start.
func NewWatcher() *Watcher {
	return &Watcher{
		interval: DefaultPollInterval,
		events:   make(chan Command),
		stop:     make(chan struct{}),
	}
}

// Bind attaches an input line to a command.
func (w *Watcher) Bind(in Input, cmd Command) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bindings = append(w.bindings, &binding{input: in, cmd: cmd})
}

// Events returns the channel on which button commands are delivered.
func (w *Watcher) Events() <-chan Command {
	return w.events
}

// Start launches the polling worker.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.worker()
}

// Stop terminates the polling loop and waits for the worker to finish.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
	}
	w.wg.Wait()
}

func (w *Watcher) worker() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if !w.poll() {
			return
		}
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}
	}
}

func (w *Watcher) poll() bool {
	w.mu.Lock()
	bindings := w.bindings
	w.mu.Unlock()

	for _, b := range bindings {
		pressed, err := b.input.Read()
		if err != nil {
			log.Printf("Failed to sample %s button: %v", b.cmd, err)
			continue
		}
		if pressed && !b.pressed {
			select {
			case w.events <- b.cmd:
			case <-w.stop:
				return false
			}
		}
		b.pressed = pressed
	}
	return true
}

// gpioInput adapts a periph GPIO pin. Buttons short the line to ground, so a
// low level means pressed.
type gpioInput struct {
	pin gpio.PinIn
}

func (g gpioInput) Read() (bool, error) {
	return g.pin.Read() == gpio.Low, nil
}

// OpenPin resolves a GPIO pin by name (e.g. "GPIO17") as a button line with
// the internal pull-up enabled.
func OpenPin(name string) (Input, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configuring gpio pin %q: %w", name, err)
	}
	return gpioInput{pin: pin}, nil
}
