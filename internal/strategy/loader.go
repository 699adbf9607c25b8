package strategy

import (
	"fmt"
	"sync"

	"github.com/weaverhq/weaver/internal/pluginscan"
)

// metadataVarName is the exported variable every strategy plugin file
// must declare: `var Metadata = strategy.Metadata{...}`.
const metadataVarName = "Metadata"

// Loader discovers strategy metadata from a plugin directory by syntactic
// scan, and resolves Factory implementations that have been registered
// separately via Register (real Go can't dynamically load a package
// without importing it, so the binary's build still links every strategy
// it ships with; the scan only prevents a broken plugin file from
// blocking discovery of the others' metadata).
type Loader struct {
	mu        sync.RWMutex
	metadata  map[string]Metadata
	factories map[string]Factory
}

// NewLoader scans dir for plugin metadata records.
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

// Register binds a Factory to a plugin id, making it loadable. Must be
// called (typically from an init-time registry in cmd/weaverd) before
// Load is used for that id.
func (l *Loader) Register(id string, f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[id] = f
}

// ListAvailable returns every discovered plugin's metadata.
func (l *Loader) ListAvailable() []Metadata {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Metadata, 0, len(l.metadata))
	for _, m := range l.metadata {
		out = append(out, m)
	}
	return out
}

// GetMetadata returns the metadata for id, if discovered.
func (l *Loader) GetMetadata(id string) (Metadata, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.metadata[id]
	return m, ok
}

// Load constructs a fresh Plugin instance for id.
func (l *Loader) Load(id string) (Plugin, error) {
	l.mu.RLock()
	factory, ok := l.factories[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy: no factory registered for plugin %q", id)
	}
	return factory(), nil
}
