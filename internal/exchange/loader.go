package exchange

import (
	"fmt"
	"sync"

	"github.com/weaverhq/weaver/internal/pluginscan"
)

const metadataVarName = "Metadata"

// Metadata is an adapter plugin's self-description (spec §4.3).
type Metadata struct {
	ID                 string
	Name               string
	Version            string
	ClassName          string
	SupportedFeatures  []string
	File               string
}

// Credentials carries whatever an adapter's Factory needs to construct a
// connected-but-not-yet-Connect()ed instance: API keys, base URLs, etc.
type Credentials map[string]string

// Factory constructs an Adapter instance from credentials.
type Factory func(creds Credentials) Adapter

// Loader discovers adapter metadata from a plugin directory and resolves
// registered Factory implementations, mirroring internal/strategy.Loader.
type Loader struct {
	mu        sync.RWMutex
	metadata  map[string]Metadata
	factories map[string]Factory
}

// NewLoader scans dir for adapter metadata records.
func NewLoader(dir string) (*Loader, error) {
	records, err := pluginscan.ScanDir(dir, metadataVarName)
	if err != nil {
		return nil, err
	}
	l := &Loader{
		metadata:  make(map[string]Metadata),
		factories: make(map[string]Factory),
	}
	for _, rec := range records {
		id := rec.Fields["ID"]
		if id == "" {
			continue
		}
		l.metadata[id] = Metadata{
			ID:        id,
			Name:      rec.Fields["Name"],
			Version:   rec.Fields["Version"],
			ClassName: rec.Fields["ClassName"],
			File:      rec.File,
		}
	}
	return l, nil
}

// Register binds a Factory to a plugin id.
func (l *Loader) Register(id string, f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[id] = f
}

// RegisterBuiltin registers both a Factory and static metadata for an
// adapter that ships in the binary rather than as a scanned plugin file
// (the mock and live adapters: they're core, not third-party-loaded).
func (l *Loader) RegisterBuiltin(m Metadata, f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metadata[m.ID] = m
	l.factories[m.ID] = f
}

func (l *Loader) ListAvailable() []Metadata {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Metadata, 0, len(l.metadata))
	for _, m := range l.metadata {
		out = append(out, m)
	}
	return out
}

func (l *Loader) GetMetadata(id string) (Metadata, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.metadata[id]
	return m, ok
}

// SupportsFeature reports whether id's discovered metadata advertises f.
func (l *Loader) SupportsFeature(id, f string) bool {
	m, ok := l.GetMetadata(id)
	if !ok {
		return false
	}
	for _, sf := range m.SupportedFeatures {
		if sf == f {
			return true
		}
	}
	return false
}

// Load constructs a fresh Adapter for id with creds.
func (l *Loader) Load(id string, creds Credentials) (Adapter, error) {
	l.mu.RLock()
	factory, ok := l.factories[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exchange: no factory registered for adapter %q", id)
	}
	return factory(creds), nil
}
