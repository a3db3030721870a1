package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/cmshub/cmshub/internal/metrics"
)

const sourceRegistry = "registry"

// ConnectorRegistry is the catalog of drivers. Definitions are registered in
// code; when a connectors root is set, the discoverable ids are the
// subdirectories of that root instead, each naming a registered kind through
// its driver manifest.
type ConnectorRegistry struct {
	definitions map[string]ConnectorDefinition
	order       []string // Registration order

	root   fs.FS
	deps   Deps
	logger *slog.Logger
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{
		definitions: make(map[string]ConnectorDefinition),
		order:       make([]string, 0),
	}
}

// Register adds a connector definition to the registry.
func (r *ConnectorRegistry) Register(def ConnectorDefinition) error {
	if def == nil {
		return fmt.Errorf("connector definition cannot be nil")
	}
	kind := normalizeKind(def.Kind())
	if kind == "" {
		return fmt.Errorf("connector kind cannot be empty")
	}
	if _, exists := r.definitions[kind]; exists {
		return fmt.Errorf("connector kind %q already registered", kind)
	}
	r.definitions[kind] = def
	r.order = append(r.order, kind)
	return nil
}

// SetRoot switches discovery to the subdirectories of dir. An empty dir
// restores code-registry discovery.
func (r *ConnectorRegistry) SetRoot(dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		r.root = nil
		return
	}
	r.root = os.DirFS(dir)
}

// SetRootFS is SetRoot for an arbitrary filesystem.
func (r *ConnectorRegistry) SetRootFS(fsys fs.FS) {
	r.root = fsys
}

// SetDeps sets the collaborators injected into instantiated drivers.
func (r *ConnectorRegistry) SetDeps(deps Deps) {
	r.deps = deps
}

// SetLogger sets the logger used for discovery diagnostics.
func (r *ConnectorRegistry) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// Kinds returns registered kinds in registration order.
func (r *ConnectorRegistry) Kinds() []string {
	return slices.Clone(r.order)
}

// Discover returns a descriptor for every valid candidate, sorted by id.
// Invalid candidates are excluded without error.
func (r *ConnectorRegistry) Discover() []Descriptor {
	ids := r.candidateIDs()
	out := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		desc, reason := r.check(id)
		if reason != "" {
			r.reject(id, reason)
			continue
		}
		out = append(out, desc)
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// IsValid reports whether id passes every discovery check.
func (r *ConnectorRegistry) IsValid(id string) bool {
	_, reason := r.check(id)
	return reason == ""
}

// Describe returns the descriptor for id, or false if id is not valid.
func (r *ConnectorRegistry) Describe(id string) (Descriptor, bool) {
	desc, reason := r.check(id)
	if reason != "" {
		return Descriptor{}, false
	}
	return desc, true
}

// Instantiate constructs an independent, uninitialized driver for id.
func (r *ConnectorRegistry) Instantiate(id string) (conn Connector, err error) {
	desc, reason := r.check(id)
	if reason != "" {
		return nil, fmt.Errorf("%w: %q (%s)", ErrDriverNotFound, strings.TrimSpace(id), reason)
	}
	def := r.definitions[desc.Kind]

	defer func() {
		if rec := recover(); rec != nil {
			conn = nil
			err = fmt.Errorf("instantiate driver %q: panic: %v", desc.ID, rec)
		}
	}()

	deps := r.deps
	if deps.Logger == nil {
		deps.Logger = r.log()
	}
	deps.Logger = deps.Logger.With("driver", desc.ID)
	conn, err = def.New(deps)
	if err != nil {
		return nil, fmt.Errorf("instantiate driver %q: %w", desc.ID, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("instantiate driver %q: factory returned nil", desc.ID)
	}
	if desc.Identity != def.Identity() {
		conn = describedConnector{Connector: conn, identity: desc.Identity}
	}
	return conn, nil
}

// ListByType returns descriptors whose system type matches, case-insensitively.
func (r *ConnectorRegistry) ListByType(systemType string) []Descriptor {
	return r.filter(func(d Descriptor) bool {
		return strings.EqualFold(strings.TrimSpace(d.SystemType), strings.TrimSpace(systemType))
	})
}

// ListByIconClass returns descriptors with the given icon class.
func (r *ConnectorRegistry) ListByIconClass(class string) []Descriptor {
	return r.filter(func(d Descriptor) bool {
		return strings.TrimSpace(d.IconClass) == strings.TrimSpace(class)
	})
}

// ListTypes returns the distinct system types of discovered drivers, sorted.
func (r *ConnectorRegistry) ListTypes() []string {
	return r.project(func(d Descriptor) string { return strings.ToLower(strings.TrimSpace(d.SystemType)) })
}

// ListIconClasses returns the distinct icon classes of discovered drivers, sorted.
func (r *ConnectorRegistry) ListIconClasses() []string {
	return r.project(func(d Descriptor) string { return strings.TrimSpace(d.IconClass) })
}

func (r *ConnectorRegistry) filter(keep func(Descriptor) bool) []Descriptor {
	var out []Descriptor
	for _, d := range r.Discover() {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r *ConnectorRegistry) project(value func(Descriptor) string) []string {
	var out []string
	for _, d := range r.Discover() {
		if v := value(d); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (r *ConnectorRegistry) candidateIDs() []string {
	if r.root == nil {
		return slices.Clone(r.order)
	}
	entries, err := fs.ReadDir(r.root, ".")
	if err != nil {
		r.log().Warn("read connectors root failed", "err", err)
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	return ids
}

// check runs the entry-point, contract and metadata checks for one id. A
// non-empty reason means the candidate is invalid.
func (r *ConnectorRegistry) check(id string) (desc Descriptor, reason string) {
	defer func() {
		if rec := recover(); rec != nil {
			desc = Descriptor{}
			reason = "panic"
		}
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		return Descriptor{}, "empty_id"
	}

	kind := normalizeKind(id)
	source := sourceRegistry
	var manifest *Manifest
	if r.root != nil {
		if !validDirName(id) {
			return Descriptor{}, "invalid_id"
		}
		m, err := readManifest(r.root, id)
		if err != nil {
			return Descriptor{}, manifestReason(err)
		}
		manifest = m
		kind = normalizeKind(m.Kind)
		source = id + "/" + ManifestFile
	}

	def, ok := r.definitions[kind]
	if !ok {
		return Descriptor{}, "unknown_kind"
	}
	if _, ok := def.Entry().(Connector); !ok {
		return Descriptor{}, "contract"
	}

	identity := def.Identity()
	if manifest != nil {
		identity = manifest.apply(identity)
	}
	if strings.TrimSpace(identity.Name) == "" {
		return Descriptor{}, "metadata"
	}

	return Descriptor{
		ID:       id,
		Kind:     kind,
		Identity: identity,
		Source:   source,
		form:     def.SettingsForm,
	}, ""
}

func (r *ConnectorRegistry) reject(id, reason string) {
	metrics.RegistryCandidatesRejectedTotal.WithLabelValues(reason).Inc()
	r.log().Debug("driver candidate excluded", "id", id, "reason", reason)
}

func (r *ConnectorRegistry) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

func validDirName(id string) bool {
	if id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

// describedConnector reports the manifest identity instead of the driver's
// built-in one.
type describedConnector struct {
	Connector
	identity Identity
}

func (c describedConnector) Identity() Identity {
	return c.identity
}
