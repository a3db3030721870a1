package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

// RefPrefix marks a config value as a secret reference: vault:<path>#<field>.
const RefPrefix = "vault:"

// ErrNoBackend means a config references a secret but no backend is configured.
var ErrNoBackend = errors.New("secret reference found but no secret backend is configured")

// Resolver replaces secret references in an integration config.
type Resolver interface {
	Resolve(ctx context.Context, cfg map[string]any) (map[string]any, error)
}

// Ref is a parsed secret reference.
type Ref struct {
	Path  string
	Field string
}

// ParseRef parses vault:<path>#<field>. ok is false for plain values.
func ParseRef(value string) (Ref, bool) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, RefPrefix) {
		return Ref{}, false
	}
	path, field, found := strings.Cut(strings.TrimPrefix(value, RefPrefix), "#")
	path = strings.Trim(strings.TrimSpace(path), "/")
	field = strings.TrimSpace(field)
	if !found || path == "" || field == "" {
		return Ref{}, false
	}
	return Ref{Path: path, Field: field}, true
}

// Static resolves nothing. It fails on any config that holds a reference.
type Static struct{}

func (Static) Resolve(_ context.Context, cfg map[string]any) (map[string]any, error) {
	_, err := walk(cfg, func(ref Ref) (any, error) {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, ref.Path)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

type VaultOptions struct {
	Address   string
	Token     string
	Namespace string
}

// Vault resolves references against a Vault server with token auth. KV v2
// responses are unwrapped automatically.
type Vault struct {
	client *vaultapi.Client
}

func NewVault(opts VaultOptions) (*Vault, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("vault token is required")
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	cfg.HttpClient = &http.Client{Timeout: 30 * time.Second}
	cfg.MaxRetries = 0
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	client.SetToken(token)
	if ns := strings.TrimSpace(opts.Namespace); ns != "" {
		client.SetNamespace(ns)
	}
	return &Vault{client: client}, nil
}

// Resolve returns a copy of cfg with every reference replaced by its secret
// value. Each path is read at most once per call.
func (v *Vault) Resolve(ctx context.Context, cfg map[string]any) (map[string]any, error) {
	cache := make(map[string]map[string]any)
	out, err := walk(cfg, func(ref Ref) (any, error) {
		data, ok := cache[ref.Path]
		if !ok {
			var err error
			data, err = v.read(ctx, ref.Path)
			if err != nil {
				return nil, err
			}
			cache[ref.Path] = data
		}
		value, ok := lookup(data, ref.Field)
		if !ok {
			return nil, fmt.Errorf("vault secret %s has no field %q", ref.Path, ref.Field)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func (v *Vault) read(ctx context.Context, path string) (map[string]any, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault secret %s not found", path)
	}
	return secret.Data, nil
}

func lookup(data map[string]any, field string) (any, bool) {
	if value, ok := data[field]; ok {
		return value, true
	}
	if inner, ok := data["data"].(map[string]any); ok {
		value, ok := inner[field]
		return value, ok
	}
	return nil, false
}

// walk copies value, replacing string references found in maps and slices.
func walk(value any, resolve func(Ref) (any, error)) (any, error) {
	switch v := value.(type) {
	case string:
		if ref, ok := ParseRef(v); ok {
			return resolve(ref)
		}
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := walk(item, resolve)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := walk(item, resolve)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}
