// Package camera arbitrates exclusive access to a single physical capture
// device. Ownership is expressed as a lease: at most one live lease exists at
// any instant, acquisition fails fast when the device is held, and a forced
// release invalidates the outstanding lease so a lagging holder fails cleanly
// instead of reading through a stale handle.
package camera

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDeviceBusy is returned by Acquire while another lease is live.
	// Recoverable: the caller retries later or reports "in use".
	ErrDeviceBusy = errors.New("camera device busy")
	// ErrDeviceUnavailable wraps OS-level open failures. Fatal to the
	// requesting session; no partial lease is left behind.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrLeaseRevoked is returned by lease operations after a force release
	// or a release by the holder.
	ErrLeaseRevoked = errors.New("camera lease revoked")
)

// Lease represents exclusive ownership of the camera by one session. Only
// the goroutine that acquired the lease may call ReadFrame.
type Lease struct {
	id         string
	owner      string
	granted    Mode
	acquiredAt time.Time

	arb *Arbiter
}

// ID returns the lease's unique identifier.
func (l *Lease) ID() string { return l.id }

// Owner returns the identifier the lease was acquired under.
func (l *Lease) Owner() string { return l.owner }

// Granted returns the capture mode the device actually granted, which may
// differ from the requested mode.
func (l *Lease) Granted() Mode { return l.granted }

// AcquiredAt returns the acquisition timestamp.
func (l *Lease) AcquiredAt() time.Time { return l.acquiredAt }

// ReadFrame reads the next frame from the underlying device. Returns
// ErrLeaseRevoked if the lease has been released or forcibly revoked.
func (l *Lease) ReadFrame() ([]byte, error) {
	l.arb.mu.Lock()
	valid := l.arb.current == l
	l.arb.mu.Unlock()
	if !valid {
		return nil, ErrLeaseRevoked
	}
	// The device read happens outside the arbiter lock: frame reads are the
	// slow path and must not block Acquire/Status callers.
	return l.arb.device.ReadFrame()
}

// Release returns the lease to the arbiter. Releasing a lease that is no
// longer current (double release, or release after ForceRelease) is a no-op.
func (l *Lease) Release() {
	l.arb.release(l)
}

// Arbiter owns the single capture device and grants leases on it.
type Arbiter struct {
	device Device

	mu      sync.Mutex
	current *Lease
	revoked int
}

// NewArbiter wraps the given device. The arbiter assumes sole responsibility
// for opening and closing it.
func NewArbiter(device Device) *Arbiter {
	return &Arbiter{device: device}
}

// Acquire atomically claims the device for owner, opening it with the
// requested mode. Two concurrent Acquire calls never both succeed: the loser
// gets ErrDeviceBusy immediately rather than blocking.
func (a *Arbiter) Acquire(owner string, want Mode) (*Lease, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		return nil, fmt.Errorf("%w: held by %q since %s",
			ErrDeviceBusy, a.current.owner, a.current.acquiredAt.Format(time.RFC3339))
	}

	granted, err := a.device.Open(want)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if granted != want {
		log.Printf("camera: requested mode %s unsupported, device granted %s", want, granted)
	}

	lease := &Lease{
		id:         uuid.NewString(),
		owner:      owner,
		granted:    granted,
		acquiredAt: time.Now(),
		arb:        a,
	}
	a.current = lease
	return lease, nil
}

func (a *Arbiter) release(l *Lease) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != l {
		return
	}
	a.current = nil
	if err := a.device.Close(); err != nil {
		log.Printf("camera: close after release: %v", err)
	}
}

// ForceRelease revokes the outstanding lease, if any, and closes the device.
// Exists to recover from a holder that crashed without releasing. Returns
// false if no lease was held.
func (a *Arbiter) ForceRelease() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return false
	}
	log.Printf("camera: force release of lease %s held by %q", a.current.id, a.current.owner)
	a.current = nil
	a.revoked++
	if err := a.device.Close(); err != nil {
		log.Printf("camera: close after force release: %v", err)
	}
	return true
}

// Status describes the arbiter's state for the API and admin routes.
type Status struct {
	Available  bool      `json:"available"`
	Owner      string    `json:"owner,omitempty"`
	LeaseID    string    `json:"lease_id,omitempty"`
	Mode       *Mode     `json:"mode,omitempty"`
	AcquiredAt time.Time `json:"acquired_at,omitzero"`
	Revoked    int       `json:"force_releases"`
}

// Status returns a point-in-time view of lease ownership.
func (a *Arbiter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Status{Available: a.current == nil, Revoked: a.revoked}
	if a.current != nil {
		mode := a.current.granted
		s.Owner = a.current.owner
		s.LeaseID = a.current.id
		s.Mode = &mode
		s.AcquiredAt = a.current.acquiredAt
	}
	return s
}
