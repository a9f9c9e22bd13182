package nursing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/directory"
)

const searchLimit = 20

type Service struct {
	duties    DutyRepository
	directory directory.Directory
	logger    zerolog.Logger
}

func NewService(duties DutyRepository, dir directory.Directory, logger zerolog.Logger) *Service {
	return &Service{duties: duties, directory: dir, logger: logger}
}

func lookupErr(err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// AssignDuty puts an on-duty staff member in charge of a patient.
func (s *Service) AssignDuty(ctx context.Context, staffID, patientID uuid.UUID) (*Duty, error) {
	st, err := s.directory.StaffByID(ctx, staffID)
	if err != nil {
		return nil, lookupErr(err)
	}
	if !st.OnDuty() {
		return nil, ErrStaffUnavailable
	}
	p, err := s.directory.PatientByID(ctx, patientID)
	if err != nil {
		return nil, lookupErr(err)
	}

	d := &Duty{StaffID: st.ID, StaffName: st.Username, PatientID: p.ID, PatientName: p.Username}
	if err := s.duties.Create(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", staffID.String()).Str("patient_id", patientID.String()).Msg("duty assigned")
	return d, nil
}

// ListDuties shows admins every duty and staff members their own.
func (s *Service) ListDuties(ctx context.Context, caller auth.Principal, limit, offset int) ([]*Duty, int, error) {
	if caller.IsAdmin {
		return s.duties.List(ctx, nil, limit, offset)
	}
	if !caller.Role.IsStaff() {
		return nil, 0, ErrForbidden
	}
	st, err := s.directory.StaffByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, 0, lookupErr(err)
	}
	return s.duties.List(ctx, &st.ID, limit, offset)
}

func (s *Service) SearchDutyNames(ctx context.Context, query string) ([]string, error) {
	return s.duties.SearchStaffNames(ctx, query, searchLimit)
}
