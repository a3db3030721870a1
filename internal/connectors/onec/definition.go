package onec

import (
	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/fetch"
)

const Kind = "onec"

type Definition struct{}

func NewDefinition() *Definition {
	return &Definition{}
}

func (d *Definition) Kind() string {
	return Kind
}

func (d *Definition) Identity() registry.Identity {
	return DefaultIdentity()
}

func (d *Definition) SettingsForm() registry.SettingsForm {
	return settingsForm(fetch.DefaultTiming())
}

func (d *Definition) Entry() any {
	return (*Driver)(nil)
}

func (d *Definition) New(deps registry.Deps) (registry.Connector, error) {
	return New(deps), nil
}

// DefaultIdentity is the built-in metadata of the ERP driver.
func DefaultIdentity() registry.Identity {
	return registry.Identity{
		Name:        "1C:Enterprise",
		SystemType:  "erp",
		Description: "Catalog, stock, price and order exchange with a 1C-style ERP HTTP service.",
		Version:     "1.2.0",
		Icon:        `<i class="bi bi-building"></i>`,
		IconClass:   "bi bi-building",
	}
}

func settingsForm(t fetch.Timing) registry.SettingsForm {
	t = t.Normalized()
	return registry.SettingsForm{Fields: []registry.Field{
		{Key: KeyURL, Label: "Service URL", Kind: registry.FieldURL, Required: true, Help: "Base URL of the ERP HTTP service, e.g. https://erp.example.com/base/hs/exchange"},
		{Key: KeyAltURLs, Label: "Alternative URLs", Kind: registry.FieldURLList, Help: "Tried in order when the service URL fails."},
		{Key: KeyUsername, Label: "Username", Kind: registry.FieldText},
		{Key: KeyPassword, Label: "Password", Kind: registry.FieldPassword, Secret: true},
		{Key: KeyAPIKey, Label: "API key", Kind: registry.FieldPassword, Secret: true, Help: "Sent as X-API-Key when set."},
		{Key: KeyTimeout, Label: "Request timeout (s)", Kind: registry.FieldNumber, Default: t.RequestTimeout.Seconds()},
		{Key: KeyConnectTimeout, Label: "Connect timeout (s)", Kind: registry.FieldNumber, Default: t.ConnectTimeout.Seconds()},
		{Key: KeyMaxAttempts, Label: "Attempts per URL", Kind: registry.FieldNumber, Default: t.MaxAttemptsPerURL},
		{Key: KeyRetryDelay, Label: "Retry delay (s)", Kind: registry.FieldNumber, Default: t.RetryDelay.Seconds()},
		{Key: KeyRequestsPerSecond, Label: "Requests per second", Kind: registry.FieldNumber, Default: 0, Help: "0 disables throttling."},
		{Key: KeyParams, Label: "Default query parameters", Kind: registry.FieldKeyValue},
	}}
}
