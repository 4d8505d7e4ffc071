// Package module lets the command layer pull typed ports out of built modules
package module

import (
	phttp "github.com/oscar-project/ungoliant/internal/platform/net/http"
)

// Module mirrors modkit.Module; it lives apart so a service can export its own ports type
// without importing modkit
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}
