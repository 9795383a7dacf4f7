package carerecipient_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hans/hans/internal/domain/careprovider"
	"github.com/hans/hans/internal/domain/carerecipient"
	"github.com/hans/hans/internal/platform/managementapi"
)

// memRepo enforces the same unique columns as the database.
type memRepo struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*carerecipient.CareRecipient
}

func newMemRepo() *memRepo {
	return &memRepo{recs: make(map[uuid.UUID]*carerecipient.CareRecipient)}
}

func (m *memRepo) Create(_ context.Context, r *carerecipient.CareRecipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.recs {
		if existing.NHSNumberHash == r.NHSNumberHash || existing.ProviderReferenceID == r.ProviderReferenceID {
			return carerecipient.ErrAlreadyExists
		}
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.recs[r.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*carerecipient.CareRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return nil, carerecipient.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) FindByHash(_ context.Context, hash string) (*carerecipient.CareRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.NHSNumberHash == hash {
			cp := *r
			return &cp, nil
		}
	}
	return nil, carerecipient.ErrNotFound
}

func (m *memRepo) ExistsByProviderReference(_ context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.ProviderReferenceID == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return carerecipient.ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

func (m *memRepo) List(_ context.Context, filter carerecipient.ListFilter, limit, offset int) ([]*carerecipient.CareRecipient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*carerecipient.CareRecipient
	for _, r := range m.recs {
		if filter.Query != "" && r.NHSNumberHash != filter.Query && !strings.Contains(r.ProviderReferenceID, filter.Query) {
			continue
		}
		if filter.LocationID != nil && r.CareProviderLocationID != *filter.LocationID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderReferenceID < out[j].ProviderReferenceID })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func (m *memRepo) byReference(ref string) *carerecipient.CareRecipient {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.ProviderReferenceID == ref {
			return r
		}
	}
	return nil
}

// fakeGateway records calls and fails for configured NHS numbers or
// subscription ids.
type fakeGateway struct {
	mu          sync.Mutex
	created     []managementapi.PatientDetails
	deleted     []uuid.UUID
	failNHS     map[string]string
	failDelete  map[uuid.UUID]string
	createCalls int
	deleteCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failNHS: map[string]string{}, failDelete: map[uuid.UUID]string{}}
}

func (g *fakeGateway) CreateSubscription(_ context.Context, p managementapi.PatientDetails) (uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if diag, ok := g.failNHS[p.NHSNumber]; ok {
		return uuid.Nil, &managementapi.Error{StatusCode: 422, Diagnostics: diag}
	}
	g.created = append(g.created, p)
	return uuid.New(), nil
}

func (g *fakeGateway) DeleteSubscription(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteCalls++
	if diag, ok := g.failDelete[id]; ok {
		return &managementapi.Error{StatusCode: 500, Diagnostics: diag}
	}
	g.deleted = append(g.deleted, id)
	return nil
}

type fakeLocations map[uuid.UUID]*careprovider.CareProviderLocation

func (f fakeLocations) GetLocation(_ context.Context, id uuid.UUID) (*careprovider.CareProviderLocation, error) {
	loc, ok := f[id]
	if !ok {
		return nil, careprovider.ErrNotFound
	}
	return loc, nil
}

func newLocation(name string) *careprovider.CareProviderLocation {
	return &careprovider.CareProviderLocation{ID: uuid.New(), RegisteredManagerID: uuid.New(), Name: name}
}
