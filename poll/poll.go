// Package poll implements a registration-based readiness multiplexer: a
// dynamic set of endpoints is watched for read/write/error readiness with a
// single timeout-bounded wait (spec.md §4.C).
package poll

import (
	"sync"

	"netkit/endpoint"
)

// Events is the three-bit readiness mask: bit 0 readable, bit 1 writable,
// bit 2 error-signal (spec.md §3 "Poll registration").
type Events int

const (
	Readable Events = 1 << iota
	Writable
	ErrorSignal
)

// Registration is one watched endpoint: the requested mask and, after Run,
// the result mask.
type Registration struct {
	Endpoint *endpoint.Endpoint
	Events   Events
	Revents  Events
	UserData any
}

// Poller owns an expandable array of registrations over endpoints it does
// not own. It is single-owner: concurrent Add and Run are undefined
// (spec.md §5).
type Poller struct {
	mu        sync.Mutex
	regs      []*Registration
	telemetry telemetryHook
}

// telemetryHook is the subset of telemetry.Registry the poller reports
// through; nil disables instrumentation.
type telemetryHook interface {
	ObservePollRegistration()
	ObservePollRun(ready int)
}

// New returns a fresh Poller with initial capacity 8.
func New() *Poller {
	return &Poller{regs: make([]*Registration, 0, 8)}
}

// SetTelemetry attaches an optional counter sink.
func (p *Poller) SetTelemetry(t telemetryHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.telemetry = t
}

// Add appends a registration. The Poller does not take ownership of ep.
func (p *Poller) Add(ep *endpoint.Endpoint, events Events, userData any) *Registration {
	p.mu.Lock()
	defer p.mu.Unlock()
	reg := &Registration{Endpoint: ep, Events: events, UserData: userData}
	p.regs = append(p.regs, reg)
	if p.telemetry != nil {
		p.telemetry.ObservePollRegistration()
	}
	return reg
}

// Remove drops a registration previously returned by Add.
func (p *Poller) Remove(reg *Registration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.regs {
		if r == reg {
			p.regs = append(p.regs[:i], p.regs[i+1:]...)
			return
		}
	}
}

// Run builds a transient OS-poll array mirroring the registrations and
// submits a single system poll bounded by timeoutMs. It returns the count
// of ready endpoints (0 on timeout, negative on error) and propagates the
// result mask back into each registration.
func (p *Poller) Run(timeoutMs int) (int, error) {
	p.mu.Lock()
	regs := make([]*Registration, len(p.regs))
	copy(regs, p.regs)
	t := p.telemetry
	p.mu.Unlock()

	if len(regs) == 0 {
		sleepMs(timeoutMs)
		if t != nil {
			t.ObservePollRun(0)
		}
		return 0, nil
	}

	fds := make([]uintptr, len(regs))
	for i, r := range regs {
		fd, err := r.Endpoint.RawFD()
		if err != nil {
			return -1, err
		}
		fds[i] = fd
	}

	reventsRaw, err := osPoll(fds, eventsOf(regs), timeoutMs)
	if err != nil {
		return -1, err
	}

	ready := 0
	for i, r := range regs {
		r.Revents = reventsRaw[i]
		if r.Revents != 0 {
			ready++
		}
	}
	if t != nil {
		t.ObservePollRun(ready)
	}
	return ready, nil
}

func eventsOf(regs []*Registration) []Events {
	out := make([]Events, len(regs))
	for i, r := range regs {
		out[i] = r.Events
	}
	return out
}

// Free releases the registration array.
func (p *Poller) Free() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs = nil
}

// Wait is the single-endpoint convenience form, internally equivalent to a
// one-element Poller (spec.md §4.C).
func Wait(ep *endpoint.Endpoint, events Events, timeoutMs int) (Events, error) {
	p := New()
	reg := p.Add(ep, events, nil)
	n, err := p.Run(timeoutMs)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return reg.Revents, nil
}
