package export

import (
	"context"
	"sync"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
)

// Store persists generated packages. Packages are immutable except for
// AppendAccess, which must be atomic per package.
type Store interface {
	Create(ctx context.Context, pkg *Package) error
	// Get returns a package, or sentinel.ErrNotFound.
	Get(ctx context.Context, exportID id.ExportID) (*Package, error)
	AppendAccess(ctx context.Context, exportID id.ExportID, entry AccessEntry) error
	ListByCohort(ctx context.Context, cohortID id.CohortID) ([]*Package, error)
	AppendAudit(ctx context.Context, event audit.Event) error
}

// InMemoryStore guards packages with a mutex; access log appends happen under
// the write lock.
type InMemoryStore struct {
	mu       sync.RWMutex
	packages map[id.ExportID]*Package
	trail    audit.Store
}

// NewInMemoryStore builds a store writing audit entries to the given trail.
func NewInMemoryStore(trail audit.Store) *InMemoryStore {
	return &InMemoryStore{packages: make(map[id.ExportID]*Package), trail: trail}
}

func (s *InMemoryStore) Create(_ context.Context, pkg *Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[pkg.ID]; ok {
		return sentinel.ErrConflict
	}
	s.packages[pkg.ID] = clonePackage(pkg)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, exportID id.ExportID) (*Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pkg, ok := s.packages[exportID]; ok {
		return clonePackage(pkg), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) AppendAccess(_ context.Context, exportID id.ExportID, entry AccessEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.packages[exportID]
	if !ok {
		return sentinel.ErrNotFound
	}
	pkg.AccessLog = append(pkg.AccessLog, entry)
	return nil
}

func (s *InMemoryStore) ListByCohort(_ context.Context, cohortID id.CohortID) ([]*Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var packages []*Package
	for _, pkg := range s.packages {
		if pkg.CohortID == cohortID {
			packages = append(packages, clonePackage(pkg))
		}
	}
	return packages, nil
}

func (s *InMemoryStore) AppendAudit(ctx context.Context, event audit.Event) error {
	return s.trail.Append(ctx, event)
}

func clonePackage(pkg *Package) *Package {
	clone := *pkg
	clone.FileManifest = append([]FileEntry{}, pkg.FileManifest...)
	clone.AccessLog = append([]AccessEntry{}, pkg.AccessLog...)
	clone.Metadata.SourceTypes = append([]string{}, pkg.Metadata.SourceTypes...)
	return &clone
}
