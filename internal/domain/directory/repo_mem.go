package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-process DoctorRepository.
type MemoryRepo struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]*Doctor
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *MemoryRepo) Create(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.doctors {
		if strings.EqualFold(other.Email, d.Email) {
			return fmt.Errorf("%s: %w", d.Email, ErrDuplicateEmail)
		}
	}
	now := time.Now()
	d.ID = uuid.New()
	d.CreatedAt = now
	d.UpdatedAt = now
	stored := *d
	m.doctors[d.ID] = &stored
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) List(_ context.Context, speciality string, limit, offset int) ([]*Doctor, int, error) {
	m.mu.RLock()
	var all []*Doctor
	for _, d := range m.doctors {
		if speciality == "" || strings.EqualFold(d.Speciality, speciality) {
			cp := *d
			all = append(all, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemoryRepo) SetAvailability(_ context.Context, id uuid.UUID, available bool) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	d.Available = available
	d.UpdatedAt = time.Now()
	cp := *d
	return &cp, nil
}
