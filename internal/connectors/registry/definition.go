package registry

import (
	"log/slog"
	"net/http"

	"github.com/cmshub/cmshub/internal/fetch"
)

// ConnectorDefinition is what a driver package registers at startup. None of
// its methods may perform I/O.
type ConnectorDefinition interface {
	// Kind is the code-level driver key, e.g. "onec".
	Kind() string
	Identity() Identity
	SettingsForm() SettingsForm

	// Entry returns a nil pointer of the driver type. The registry checks it
	// against Connector without constructing a driver.
	Entry() any

	// New constructs a driver. Only Registry.Instantiate calls it.
	New(deps Deps) (Connector, error)
}

// Deps are the collaborators injected into every driver at construction.
type Deps struct {
	Logger *slog.Logger
	// HTTP overrides the per-config client; tests use it for fake transports.
	HTTP *http.Client
	// Timing is the default fetch policy; driver config may override it.
	Timing fetch.Timing
}

// Descriptor is read-only metadata about one discoverable driver id.
type Descriptor struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Identity
	// Source is "registry" for code-registered drivers or the manifest path.
	Source string `json:"source"`

	form func() SettingsForm
}

// SettingsForm generates the driver's settings form with default values.
func (d Descriptor) SettingsForm() SettingsForm {
	if d.form == nil {
		return SettingsForm{}
	}
	return d.form()
}
