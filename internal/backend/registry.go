package backend

import "sort"

// Registry is the static backend table, built once at startup. All call
// targets are known at wiring time; nothing is resolved dynamically later.
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		if c == nil {
			continue
		}
		r.clients[c.ID()] = c
	}
	return r
}

// Lookup returns the client registered under id, or nil.
func (r *Registry) Lookup(id string) Client {
	return r.clients[id]
}

// Capabilities reports which logical IDs currently have a client. Credential
// presence is decided at wiring time: a backend whose API key is absent is
// simply never registered.
func (r *Registry) Capabilities() map[string]bool {
	caps := make(map[string]bool, len(r.clients))
	for id := range r.clients {
		caps[id] = true
	}
	return caps
}

// IDs returns registered backend IDs in stable order, for logging.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
