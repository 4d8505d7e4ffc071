// Package modkit wires pipeline services from shared deps and exposes their ports
package modkit

import (
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
)

// Module is the common surface for services that expose ports and, optionally, status routes
// keep this tiny so services stay decoupled
type Module interface {
	// MountRoutes mounts HTTP routes under the provided router seam; batch-only modules mount nothing
	MountRoutes(r phttp.Router)
	// Ports returns a module specific port set for cross wiring
	Ports() any

	// Name returns the module name
	Name() string
}

// Builder constructs a Module from shared deps and options
type Builder func(Deps, ...Option) Module
