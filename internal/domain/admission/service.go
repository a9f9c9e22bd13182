package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/directory"
	"github.com/hms/hms/internal/platform/metrics"
)

type Service struct {
	rooms      RoomRepository
	admissions AdmissionRepository
	requests   DischargeRequestRepository
	directory  directory.Directory
	tx         db.Transactor
	clock      clock.Clock
	logger     zerolog.Logger
}

func NewService(rooms RoomRepository, admissions AdmissionRepository, requests DischargeRequestRepository,
	dir directory.Directory, tx db.Transactor, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		rooms:      rooms,
		admissions: admissions,
		requests:   requests,
		directory:  dir,
		tx:         tx,
		clock:      clk,
		logger:     logger,
	}
}

func lookupErr(err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func clinicalOrAdmin(p auth.Principal) bool {
	return p.IsAdmin || p.Role.IsStaff()
}

// -- Rooms --

func (s *Service) CreateRoom(ctx context.Context, r *Room) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.rooms.Create(ctx, r)
}

func (s *Service) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return s.rooms.GetByID(ctx, id)
}

func (s *Service) ListRooms(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	return s.rooms.List(ctx, limit, offset)
}

// -- Admissions --

// Admit places patientID in roomID. A room holds at most one active
// admission; the storage constraint settles concurrent attempts.
func (s *Service) Admit(ctx context.Context, caller auth.Principal, patientID, roomID uuid.UUID) (*Admission, error) {
	if !clinicalOrAdmin(caller) {
		return nil, ErrForbidden
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	patient, err := s.directory.PatientByID(ctx, patientID)
	if err != nil {
		return nil, lookupErr(err)
	}

	a := &Admission{
		PatientID:   patient.ID,
		PatientName: patient.Username,
		RoomID:      room.ID,
		RoomNumber:  room.Number,
		AdmittedBy:  caller.UserID,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.admissions.ActiveForRoom(ctx, roomID); err == nil {
			return ErrRoomOccupied
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return s.admissions.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAdmissionEvent("admitted")
	s.logger.Info().
		Str("admission_id", a.ID.String()).
		Str("patient_id", patientID.String()).
		Int("room", room.Number).
		Msg("patient admitted")
	return a, nil
}

func (s *Service) GetAdmission(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return s.admissions.GetByID(ctx, id)
}

func (s *Service) ListAdmissions(ctx context.Context, active *bool, limit, offset int) ([]*Admission, int, error) {
	return s.admissions.List(ctx, active, limit, offset)
}

// -- Discharge --

// RequestDischarge records a pending discharge for the patient's active
// admission.
func (s *Service) RequestDischarge(ctx context.Context, caller auth.Principal, patientID uuid.UUID) (*DischargeRequest, error) {
	if !clinicalOrAdmin(caller) {
		return nil, ErrForbidden
	}

	var req *DischargeRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.admissions.LatestForPatient(ctx, patientID)
		if err != nil {
			return err
		}
		if !a.Active() {
			return ErrAlreadyDischarged
		}
		if _, err := s.requests.PendingForAdmission(ctx, a.ID); err == nil {
			return ErrDischargeAlreadyRequested
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		req = &DischargeRequest{
			PatientID:   patientID,
			PatientName: a.PatientName,
			AdmissionID: a.ID,
			RequestedBy: caller.UserID,
			Status:      DischargePending,
		}
		return s.requests.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAdmissionEvent("discharge_requested")
	s.logger.Info().
		Str("admission_id", req.AdmissionID.String()).
		Str("requested_by", caller.UserID.String()).
		Msg("discharge requested")
	return req, nil
}

// FinalizeDischarge closes the admission with charge and completes any
// pending discharge requests for it, atomically.
func (s *Service) FinalizeDischarge(ctx context.Context, caller auth.Principal, admissionID uuid.UUID, charge float64) (*Admission, error) {
	if !caller.IsAdmin {
		return nil, ErrForbidden
	}
	if charge < MinDischargeCharge {
		return nil, fmt.Errorf("%w: minimum is %.2f", ErrChargeTooLow, MinDischargeCharge)
	}

	now := s.clock.Now()
	var a *Admission
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.admissions.GetByID(ctx, admissionID)
		if err != nil {
			return err
		}
		if !a.Active() {
			return ErrAlreadyDischarged
		}
		if err := s.admissions.Discharge(ctx, admissionID, now, charge); err != nil {
			return err
		}
		if _, err := s.requests.CompletePending(ctx, admissionID, now); err != nil {
			return fmt.Errorf("complete discharge requests: %w", err)
		}
		a.DischargedAt = &now
		a.Charge = &charge
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAdmissionEvent("discharged")
	s.logger.Info().
		Str("admission_id", admissionID.String()).
		Float64("charge", charge).
		Msg("discharge finalized")
	return a, nil
}

func (s *Service) ListDischargeRequests(ctx context.Context, status *DischargeStatus, limit, offset int) ([]*DischargeRequest, int, error) {
	return s.requests.List(ctx, status, limit, offset)
}
