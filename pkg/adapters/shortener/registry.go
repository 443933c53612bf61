package shortener

import (
	"net/http"

	"github.com/wadjakorntonsri/go-link-guard/pkg/config"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

// Registry holds the configured providers in priority order.
type Registry struct {
	names   []string
	clients map[string]ports.Shortener
}

func NewRegistry(providers []config.Provider, client *http.Client) *Registry {
	r := &Registry{clients: make(map[string]ports.Shortener, len(providers))}
	for _, p := range providers {
		if _, dup := r.clients[p.Name]; dup {
			continue
		}
		r.names = append(r.names, p.Name)
		r.clients[p.Name] = NewClient(p.Name, p.APIURL, client)
	}
	return r
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) Get(name string) (ports.Shortener, bool) {
	s, ok := r.clients[name]
	return s, ok
}

var _ ports.ProviderSet = (*Registry)(nil)
