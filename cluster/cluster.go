// Package cluster implements the membership registry of spec.md §4.H: a
// fixed-size node table with join/leave/heartbeat/broadcast over plain
// UDP fan-out.
package cluster

import (
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"netkit/endpoint"
	"netkit/protocol"
)

// maxNodes bounds the registry table (spec.md §4.H "fixed-size table
// N=32").
const maxNodes = 32

// Node is one entry in the membership table.
type Node struct {
	ID            string
	Addr          string
	Port          int
	Active        bool
	LastHeartbeat int64
}

// Registry is process-wide mutable state: the table and self record are
// guarded by mu, matching poll.Poller's own single-mutex shape (spec.md §5
// "the cluster registry is process-wide mutable state... implementations
// MUST serialize concurrent access to its table and self record").
type Registry struct {
	mu        sync.Mutex
	self      Node
	nodes     []Node
	log       zerolog.Logger
	telemetry telemetryHook
}

// telemetryHook is the subset of telemetry.Registry the registry reports
// through; nil disables instrumentation.
type telemetryHook interface {
	SetClusterActiveNodes(n int)
	AddClusterBroadcastFailures(n int)
}

// SetTelemetry attaches an optional counter sink.
func (r *Registry) SetTelemetry(t telemetryHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telemetry = t
}

// NewSelf builds a self Node, generating a UUID id when none is supplied
// (SPEC_FULL.md §3.5 — the config layer may omit an explicit node id).
func NewSelf(id, addr string, port int) Node {
	if id == "" {
		id = uuid.NewString()
	}
	return Node{ID: id, Addr: addr, Port: port, Active: true, LastHeartbeat: time.Now().Unix()}
}

// New builds an empty Registry bound to the given logger.
func New(log zerolog.Logger) *Registry {
	return &Registry{log: log, nodes: make([]Node, 0, maxNodes)}
}

func (r *Registry) indexOf(id string) int {
	for i, n := range r.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// Join stores self, appends it to the table if not already present, and
// appends each well-formed seed (nonempty id/addr, nonzero port), deduped
// by id. Seeds are best-effort: a malformed seed is skipped, not an
// error. Returns an error only if self has an empty ID.
func (r *Registry) Join(self Node, seeds []Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if self.ID == "" {
		return endpoint.NewProtocolError("cluster: join requires a non-empty self id")
	}
	r.self = self
	if r.indexOf(self.ID) == -1 && len(r.nodes) < maxNodes {
		self.Active = true
		r.nodes = append(r.nodes, self)
	}
	for _, s := range seeds {
		if s.ID == "" || s.Addr == "" || s.Port == 0 {
			continue
		}
		if r.indexOf(s.ID) != -1 {
			continue
		}
		if len(r.nodes) >= maxNodes {
			r.log.Warn().Str("node_id", s.ID).Msg("cluster table full, dropping seed")
			continue
		}
		s.Active = true
		r.nodes = append(r.nodes, s)
		r.log.Info().
			Str("event", "seed_discovered").
			Str("node_id", s.ID).
			Str("remote", s.Addr).
			Int("port", s.Port).
			Msg("discovered seed node")
	}
	r.reportActiveCount()
	return nil
}

func (r *Registry) reportActiveCount() {
	if r.telemetry == nil {
		return
	}
	count := 0
	for _, n := range r.nodes {
		if n.Active {
			count++
		}
	}
	r.telemetry.SetClusterActiveNodes(count)
}

// Broadcast opens a fresh datagram endpoint to each active entry other
// than self, sends bytes, and closes it. Per-entry failures are swallowed
// (best-effort fan-out); Broadcast itself always reports success, but a
// telemetry counter records the failure count instead of silently
// dropping it (SPEC_FULL.md §5, fixing the dropped "broadcasted" counter).
func (r *Registry) Broadcast(bytes []byte) (failures int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	broadcastID := xid.New().String()
	for _, n := range r.nodes {
		if !n.Active || n.ID == r.self.ID {
			continue
		}
		if sendErr := r.sendOne(n, bytes); sendErr != nil {
			failures++
			r.log.Debug().
				Str("broadcast_id", broadcastID).
				Str("node_id", n.ID).
				Err(sendErr).
				Msg("broadcast to peer failed")
		}
	}
	r.log.Info().
		Str("broadcast_id", broadcastID).
		Int("failures", failures).
		Int("peers", len(r.nodes)).
		Str("payload_size", units.HumanSize(float64(len(bytes)))).
		Msg("broadcast complete")
	if r.telemetry != nil && failures > 0 {
		r.telemetry.AddClusterBroadcastFailures(failures)
	}
	return failures, nil
}

func (r *Registry) sendOne(n Node, bytes []byte) error {
	ep, err := endpoint.Create(endpoint.FamilyIPv4, protocol.UDP)
	if err != nil {
		return err
	}
	defer ep.Close()
	if err := ep.Bind("", 0); err != nil {
		return err
	}
	_, err = ep.SendTo(bytes, n.Addr, n.Port)
	return err
}

// Leave marks self's entry inactive; the entry remains in the table for
// introspection (spec.md §4.H "leave").
func (r *Registry) Leave(selfID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(selfID)
	if i == -1 {
		return endpoint.NewProtocolError("cluster: leave: unknown id %q", selfID)
	}
	r.nodes[i].Active = false
	r.reportActiveCount()
	return nil
}

// Heartbeat updates selfID's last-heartbeat to the current wall-clock
// second. The entry must already exist (spec.md §4.H "heartbeat").
// Property P7: within a session, LastHeartbeat never decreases.
func (r *Registry) Heartbeat(selfID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(selfID)
	if i == -1 {
		return endpoint.NewProtocolError("cluster: heartbeat: unknown id %q", selfID)
	}
	now := time.Now().Unix()
	if now > r.nodes[i].LastHeartbeat {
		r.nodes[i].LastHeartbeat = now
	}
	return nil
}

// ActiveNodes copies up to max entries into a new slice, preserving table
// order (spec.md §4.H "get-active-nodes").
func (r *Registry) ActiveNodes(max int) []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Node, 0, max)
	for _, n := range r.nodes {
		if len(out) >= max {
			break
		}
		out = append(out, n)
	}
	return out
}

// AllNodes returns every entry in table order, active or not — used by
// the admin HTTP surface's /cluster/nodes introspection endpoint.
func (r *Registry) AllNodes() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}
