package endpoint

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry owns every known Endpoint for one connection. It is the sole
// owner of endpoint storage (spec §9: "the registry map owns all
// endpoints; no weak references"), guarded by a mutex since the receive
// thread performs occasional address lookups against it (spec §5,
// endpointsMutex).
type Registry struct {
	mu        sync.RWMutex
	endpoints map[ID]*Endpoint
}

// NewRegistry returns an empty endpoint registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[ID]*Endpoint)}
}

// Add inserts an endpoint and returns it; if an endpoint with the same
// ID is already known, that existing endpoint (with its RTT history) is
// kept and returned instead. Used both for
// SetRemoteEndpoints (initial candidate list) and for endpoints
// discovered later from reflector responses or LAN_ENDPOINT extras
// (spec §3, Endpoint "Created on").
func (r *Registry) Add(ep *Endpoint) *Endpoint {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Registry.Add",
		"package":  "endpoint",
		"kind":     ep.Kind.String(),
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.endpoints[ep.ID]; ok {
		logger.Debug("endpoint already known, keeping existing RTT history")
		return existing
	}
	r.endpoints[ep.ID] = ep
	logger.Debug("registered new candidate endpoint")
	return ep
}

// Get returns the endpoint for id, if known.
func (r *Registry) Get(id ID) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[id]
	return ep, ok
}

// FindByAddr performs the occasional receive-thread lookup by source
// address (spec §5: "the few reads from the receive thread").
func (r *Registry) FindByAddr(addr net.Addr) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil, false
	}
	for _, ep := range r.endpoints {
		if ep.Port == uint16(udpAddr.Port) && (ep.IPv4.Equal(udpAddr.IP) || ep.IPv6.Equal(udpAddr.IP)) {
			return ep, true
		}
	}
	return nil, false
}

// All returns a snapshot slice of every known endpoint.
func (r *Registry) All() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	return out
}

// OfKind returns every known endpoint of the given kind.
func (r *Registry) OfKind(kind Kind) []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Endpoint
	for _, ep := range r.endpoints {
		if ep.Kind == kind {
			out = append(out, ep)
		}
	}
	return out
}

// Remove deletes an endpoint from the registry, e.g. on controller
// teardown.
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, id)
}

// Len reports how many endpoints are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}
