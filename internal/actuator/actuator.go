// Package actuator drives the motorized camera mount over a serial link.
// Commands are fire-and-forget: the measurement loop enqueues them and a
// worker goroutine writes them to the port, so mount latency never stalls
// frame capture.
package actuator

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
)

// Porter is the minimal surface the driver needs from a serial port. The
// abstraction enables unit testing without mount hardware.
type Porter interface {
	io.Writer
	io.Closer
}

// Open opens a real serial port for the mount controller.
func Open(path string, opts PortOptions) (Porter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// Command is one mount instruction. Value units depend on the verb:
// centimeters for height, degrees for tilt.
type Command struct {
	Verb  string
	Value float64
}

// Serialize renders the command as a single newline-terminated line, the
// wire format the mount firmware parses.
func (c Command) Serialize() string {
	return fmt.Sprintf("%s %.1f\n", c.Verb, c.Value)
}

const (
	VerbHeight = "HEIGHT" // move lens center to Value centimeters
	VerbTilt   = "TILT"   // tilt to Value degrees from horizontal
	VerbHome   = "HOME"   // return to the stowed position, Value ignored
)

// Driver owns the serial port and the command queue. Enqueue never blocks;
// commands that arrive while the queue is full are dropped and counted.
type Driver struct {
	port    Porter
	queue   chan Command
	dropped atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewDriver starts a driver writing to the given port.
func NewDriver(port Porter, queueSize int) *Driver {
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Driver{
		port:   port,
		queue:  make(chan Command, queueSize),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue queues a command for the worker. It never blocks.
func (d *Driver) Enqueue(cmd Command) {
	select {
	case <-d.closed:
		d.dropped.Add(1)
		return
	default:
	}
	select {
	case d.queue <- cmd:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns how many commands were discarded due to backpressure.
func (d *Driver) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting commands, flushes the queue, and closes the port.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	<-d.done
	return d.port.Close()
}

func (d *Driver) run() {
	defer close(d.done)
	for {
		select {
		case cmd := <-d.queue:
			d.write(cmd)
		case <-d.closed:
			for {
				select {
				case cmd := <-d.queue:
					d.write(cmd)
				default:
					return
				}
			}
		}
	}
}

func (d *Driver) write(cmd Command) {
	if _, err := d.port.Write([]byte(cmd.Serialize())); err != nil {
		log.Printf("actuator: write %s: %v", cmd.Verb, err)
	}
}
