package camera

import (
	"fmt"
	"sync"
)

// Mode describes a capture configuration request or grant.
type Mode struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps"`
}

// DefaultMode returns the capture mode used when a caller does not care.
func DefaultMode() Mode {
	return Mode{Width: 1280, Height: 720, FPS: 30}
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%dfps", m.Width, m.Height, m.FPS)
}

// Device is the physical capture collaborator. Open configures the device
// and returns the mode actually granted, which may be the nearest supported
// substitute for the requested one; callers must re-derive downstream
// geometry from the granted mode rather than assuming the request was
// honored.
type Device interface {
	// Open powers on and configures the device. Returns the granted mode.
	Open(want Mode) (Mode, error)
	// ReadFrame blocks until the next frame is available and returns its
	// encoded image bytes.
	ReadFrame() ([]byte, error)
	// Close releases the device handle. Safe to call more than once.
	Close() error
}

// FakeDevice implements Device for tests and dev mode. It serves scripted
// frames and can simulate open failure and mode substitution.
type FakeDevice struct {
	mu        sync.Mutex
	frames    [][]byte
	index     int
	opened    bool
	closed    int
	openErr   error
	readErr   error
	supported []Mode
}

// NewFakeDevice creates a fake device that serves the given frames in order,
// repeating the last frame once exhausted. With no frames it serves empty
// images forever.
func NewFakeDevice(frames ...[]byte) *FakeDevice {
	return &FakeDevice{frames: frames}
}

// SetOpenError makes subsequent Open calls fail, simulating an absent device.
func (d *FakeDevice) SetOpenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// SetReadError makes subsequent ReadFrame calls fail.
func (d *FakeDevice) SetReadError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

// SetSupportedModes restricts the device to the given modes; Open grants the
// supported mode nearest to the request by pixel count.
func (d *FakeDevice) SetSupportedModes(modes ...Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.supported = modes
}

func (d *FakeDevice) Open(want Mode) (Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return Mode{}, d.openErr
	}
	d.opened = true
	d.index = 0
	if len(d.supported) == 0 {
		return want, nil
	}
	best := d.supported[0]
	bestDiff := pixelDiff(best, want)
	for _, m := range d.supported[1:] {
		if diff := pixelDiff(m, want); diff < bestDiff {
			best, bestDiff = m, diff
		}
	}
	return best, nil
}

func pixelDiff(a, b Mode) int {
	diff := a.Width*a.Height - b.Width*b.Height
	if diff < 0 {
		diff = -diff
	}
	return diff
}

func (d *FakeDevice) ReadFrame() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil, fmt.Errorf("fake device not open")
	}
	if d.readErr != nil {
		return nil, d.readErr
	}
	if len(d.frames) == 0 {
		return []byte{}, nil
	}
	f := d.frames[d.index]
	if d.index < len(d.frames)-1 {
		d.index++
	}
	return f, nil
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	d.closed++
	return nil
}

// CloseCount reports how many times Close has been called; tests use it to
// verify a double release does not double-close the device handle.
func (d *FakeDevice) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
