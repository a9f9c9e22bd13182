package main

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/platform/directory"
)

// identityLookup is the slice of identity.Service the directory adapter reads.
type identityLookup interface {
	GetStaff(ctx context.Context, id uuid.UUID) (*identity.Staff, error)
	GetStaffByUserID(ctx context.Context, userID uuid.UUID) (*identity.Staff, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*identity.Patient, error)
}

// IdentityDirectory adapts the identity service to directory.Directory,
// avoiding imports between identity and the clinical packages.
type IdentityDirectory struct {
	identity identityLookup
}

func NewIdentityDirectory(svc identityLookup) *IdentityDirectory {
	return &IdentityDirectory{identity: svc}
}

func translate(err error) error {
	if errors.Is(err, identity.ErrNotFound) {
		return directory.ErrNotFound
	}
	return err
}

func staffEntry(s *identity.Staff) *directory.Staff {
	return &directory.Staff{
		ID:        s.ID,
		UserID:    s.UserID,
		Username:  s.Username,
		Role:      s.Role,
		Approved:  s.Approved,
		Available: s.Available,
	}
}

func patientEntry(p *identity.Patient) *directory.Patient {
	return &directory.Patient{ID: p.ID, UserID: p.UserID, Username: p.Username}
}

func (d *IdentityDirectory) StaffByID(ctx context.Context, id uuid.UUID) (*directory.Staff, error) {
	s, err := d.identity.GetStaff(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return staffEntry(s), nil
}

func (d *IdentityDirectory) StaffByUserID(ctx context.Context, userID uuid.UUID) (*directory.Staff, error) {
	s, err := d.identity.GetStaffByUserID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return staffEntry(s), nil
}

func (d *IdentityDirectory) PatientByID(ctx context.Context, id uuid.UUID) (*directory.Patient, error) {
	p, err := d.identity.GetPatient(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return patientEntry(p), nil
}

func (d *IdentityDirectory) PatientByUserID(ctx context.Context, userID uuid.UUID) (*directory.Patient, error) {
	p, err := d.identity.GetPatientByUserID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return patientEntry(p), nil
}
