package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

// Memory is a map-backed Directory for tests and local tooling.
type Memory struct {
	mu       sync.RWMutex
	staff    map[uuid.UUID]*Staff
	patients map[uuid.UUID]*Patient
}

func NewMemory() *Memory {
	return &Memory{
		staff:    make(map[uuid.UUID]*Staff),
		patients: make(map[uuid.UUID]*Patient),
	}
}

// AddStaff registers a staff member with fresh ids and returns it.
func (m *Memory) AddStaff(username string, role auth.Role, approved, available bool) *Staff {
	s := &Staff{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Username:  username,
		Role:      role,
		Approved:  approved,
		Available: available,
	}
	m.PutStaff(s)
	return s
}

// PutStaff stores s under its own ids, replacing any previous entry.
func (m *Memory) PutStaff(s *Staff) {
	cp := *s
	m.mu.Lock()
	m.staff[s.ID] = &cp
	m.mu.Unlock()
}

// AddPatient registers a patient with fresh ids and returns it.
func (m *Memory) AddPatient(username string) *Patient {
	p := &Patient{ID: uuid.New(), UserID: uuid.New(), Username: username}
	m.PutPatient(p)
	return p
}

func (m *Memory) PutPatient(p *Patient) {
	cp := *p
	m.mu.Lock()
	m.patients[p.ID] = &cp
	m.mu.Unlock()
}

func (m *Memory) StaffByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.staff[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) StaffByUserID(_ context.Context, userID uuid.UUID) (*Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.staff {
		if s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) PatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) PatientByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.patients {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
