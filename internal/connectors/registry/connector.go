package registry

import (
	"context"

	"github.com/cmshub/cmshub/internal/fetch"
)

// Connector is the contract every integration driver implements.
//
// Identity and SettingsForm are pure and work before Initialize. Every other
// method returns ErrUninitializedDriver until Initialize succeeds.
type Connector interface {
	Identity() Identity
	SettingsForm() SettingsForm

	// Initialize merges cfg over the driver defaults. Keys in cfg win.
	Initialize(cfg map[string]any) error

	// TestConnection reports false for ordinary connectivity failures; the
	// error is reserved for contract violations.
	TestConnection(ctx context.Context) (bool, error)

	// FetchData retrieves records for a logical endpoint such as "products".
	// Remote unavailability is reported through Result.Err, not the error.
	FetchData(ctx context.Context, endpoint string, params map[string]any) (fetch.Result, error)

	// SendData pushes payload to a logical endpoint. A remote rejection is
	// false with a nil error.
	SendData(ctx context.Context, endpoint string, payload map[string]any) (bool, error)
}

// Identity is driver metadata, safe to read without initialization.
type Identity struct {
	Name        string `json:"name"`
	SystemType  string `json:"system_type"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Icon        string `json:"icon,omitempty"`
	IconClass   string `json:"icon_class,omitempty"`
}

type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldPassword FieldKind = "password"
	FieldURL      FieldKind = "url"
	FieldURLList  FieldKind = "url_list"
	FieldNumber   FieldKind = "number"
	FieldCheckbox FieldKind = "checkbox"
	FieldKeyValue FieldKind = "key_value"
)

// Field describes one configuration input. The CRUD layer renders it; the
// core passes it through untouched.
type Field struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Default  any       `json:"default,omitempty"`
	Required bool      `json:"required,omitempty"`
	Secret   bool      `json:"secret,omitempty"`
	Help     string    `json:"help,omitempty"`
}

// SettingsForm is the driver-specific list of configurable fields.
type SettingsForm struct {
	Fields []Field `json:"fields"`
}

// Defaults returns the default value of every field that declares one.
func (f SettingsForm) Defaults() map[string]any {
	out := make(map[string]any, len(f.Fields))
	for _, field := range f.Fields {
		if field.Default != nil {
			out[field.Key] = field.Default
		}
	}
	return out
}
