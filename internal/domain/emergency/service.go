package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/directory"
)

const searchLimit = 20

type Service struct {
	cases     CaseRepository
	directory directory.Directory
	clock     clock.Clock
	logger    zerolog.Logger
}

func NewService(cases CaseRepository, dir directory.Directory, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{cases: cases, directory: dir, clock: clk, logger: logger}
}

func lookupErr(err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// CreateCase records an emergency. OccurredAt defaults to now and may not
// lie in the future.
func (s *Service) CreateCase(ctx context.Context, in CaseInput) (*Case, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	occurred := now
	if in.OccurredAt != nil {
		if in.OccurredAt.After(now) {
			return nil, fmt.Errorf("%w: occurred_at is in the future", ErrInvalid)
		}
		occurred = *in.OccurredAt
	}

	p, err := s.directory.PatientByID(ctx, in.PatientID)
	if err != nil {
		return nil, lookupErr(err)
	}
	st, err := s.directory.StaffByID(ctx, in.StaffID)
	if err != nil {
		return nil, lookupErr(err)
	}

	c := &Case{
		PatientID:   p.ID,
		PatientName: p.Username,
		StaffID:     st.ID,
		StaffName:   st.Username,
		OccurredAt:  occurred,
		Disease:     in.Disease,
		Charge:      in.Charge,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info().Str("case_id", c.ID.String()).Str("patient_id", p.ID.String()).Msg("emergency case recorded")
	return c, nil
}

func (s *Service) ListCases(ctx context.Context, limit, offset int) ([]*Case, int, error) {
	return s.cases.List(ctx, limit, offset)
}

func (s *Service) SearchCasePatientNames(ctx context.Context, query string) ([]string, error) {
	return s.cases.SearchPatientNames(ctx, strings.TrimSpace(query), searchLimit)
}
