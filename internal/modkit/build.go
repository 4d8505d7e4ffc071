package modkit

import (
	"net/http"

	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
)

// Built is a plain struct with the fields modules care about
type Built struct {
	Name   string
	Prefix string
	Mw     []func(http.Handler) http.Handler
}

// Build applies Option funcs to an internal buildCfg and returns a plain struct
func Build(opts ...Option) Built {
	var c buildCfg
	for _, o := range opts {
		o(&c)
	}
	return Built{
		Name:   c.name,
		Prefix: c.prefix,
		Mw:     append([]func(http.Handler) http.Handler(nil), c.mw...),
	}
}

// Mount attaches a module's routes under its prefix with its middlewares
func Mount(r phttp.Router, m Module, prefix string, mw ...func(http.Handler) http.Handler) {
	if prefix == "" {
		if len(mw) > 0 {
			r.Use(mw...)
		}
		m.MountRoutes(r)
		return
	}
	r.Route(prefix, func(sub phttp.Router) {
		if len(mw) > 0 {
			sub.Use(mw...)
		}
		m.MountRoutes(sub)
	})
}
