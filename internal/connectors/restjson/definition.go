package restjson

import (
	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/fetch"
)

const Kind = "restjson"

type Definition struct{}

func NewDefinition() *Definition {
	return &Definition{}
}

func (d *Definition) Kind() string {
	return Kind
}

func (d *Definition) Identity() registry.Identity {
	return registry.Identity{
		Name:        "Generic REST/JSON",
		SystemType:  "generic",
		Description: "Reads record collections from any JSON HTTP API.",
		Version:     "1.0.0",
		Icon:        `<i class="bi bi-braces"></i>`,
		IconClass:   "bi bi-braces",
	}
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

func settingsForm(t fetch.Timing) registry.SettingsForm {
	t = t.Normalized()
	return registry.SettingsForm{Fields: []registry.Field{
		{Key: KeyURL, Label: "Base URL", Kind: registry.FieldURL, Required: true},
		{Key: KeyAltURLs, Label: "Alternative URLs", Kind: registry.FieldURLList},
		{Key: KeyItemsKey, Label: "Items key", Kind: registry.FieldText, Default: fetch.DefaultItemsKey, Help: "Object key holding the record list."},
		{Key: KeyEndpoints, Label: "Endpoints", Kind: registry.FieldKeyValue, Help: "Logical endpoint name to path, e.g. products=/api/v1/products"},
		{Key: KeyHeaders, Label: "Headers", Kind: registry.FieldKeyValue, Secret: true},
		{Key: KeyTimeout, Label: "Request timeout (s)", Kind: registry.FieldNumber, Default: t.RequestTimeout.Seconds()},
		{Key: KeyMaxAttempts, Label: "Attempts per URL", Kind: registry.FieldNumber, Default: t.MaxAttemptsPerURL},
		{Key: KeyRetryDelay, Label: "Retry delay (s)", Kind: registry.FieldNumber, Default: t.RetryDelay.Seconds()},
	}}
}
