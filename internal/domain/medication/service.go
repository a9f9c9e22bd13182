package medication

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/directory"
)

const searchLimit = 20

type Service struct {
	medicines     MedicineRepository
	prescriptions PrescriptionRepository
	directory     directory.Directory
	tx            db.Transactor
	logger        zerolog.Logger
}

func NewService(medicines MedicineRepository, prescriptions PrescriptionRepository,
	dir directory.Directory, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		medicines:     medicines,
		prescriptions: prescriptions,
		directory:     dir,
		tx:            tx,
		logger:        logger,
	}
}

func lookupErr(err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func isDoctorOrAdmin(p auth.Principal) bool {
	return p.IsAdmin || p.Role == auth.RoleDoctor
}

// -- Medicines --

func (s *Service) AddMedicine(ctx context.Context, caller auth.Principal, m *Medicine) error {
	if !isDoctorOrAdmin(caller) {
		return ErrForbidden
	}
	if err := m.Validate(); err != nil {
		return err
	}
	return s.medicines.Create(ctx, m)
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *Service) UpdateMedicine(ctx context.Context, id uuid.UUID, patch MedicinePatch) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}
	if patch.Charge != nil {
		m.Charge = *patch.Charge
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := s.medicines.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListMedicines(ctx context.Context, limit, offset int) ([]*Medicine, int, error) {
	return s.medicines.List(ctx, limit, offset)
}

func (s *Service) SearchMedicineNames(ctx context.Context, query string) ([]string, error) {
	return s.medicines.SearchNames(ctx, strings.TrimSpace(query), searchLimit)
}

// -- Prescriptions --

// prescriber resolves whose name goes on the prescription: a doctor always
// prescribes as themselves, an admin must name the staff member.
func (s *Service) prescriber(ctx context.Context, caller auth.Principal, in *PrescriptionInput) (*directory.Staff, error) {
	if caller.Role == auth.RoleDoctor && !caller.IsAdmin {
		st, err := s.directory.StaffByUserID(ctx, caller.UserID)
		if err != nil {
			return nil, lookupErr(err)
		}
		return st, nil
	}
	if in.StaffID != nil {
		st, err := s.directory.StaffByID(ctx, *in.StaffID)
		if err != nil {
			return nil, lookupErr(err)
		}
		return st, nil
	}
	if st, err := s.directory.StaffByUserID(ctx, caller.UserID); err == nil {
		return st, nil
	}
	return nil, fmt.Errorf("%w: staff_id is required", ErrInvalid)
}

// CreatePrescription writes the header and every item in one transaction.
func (s *Service) CreatePrescription(ctx context.Context, caller auth.Principal, in PrescriptionInput) (*Prescription, error) {
	if !isDoctorOrAdmin(caller) {
		return nil, ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	st, err := s.prescriber(ctx, caller, &in)
	if err != nil {
		return nil, err
	}
	patient, err := s.directory.PatientByID(ctx, in.PatientID)
	if err != nil {
		return nil, lookupErr(err)
	}

	rx := &Prescription{
		PatientID:   patient.ID,
		PatientName: patient.Username,
		StaffID:     st.ID,
		StaffName:   st.Username,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		items := make([]*PrescriptionItem, 0, len(in.Items))
		for _, it := range in.Items {
			med, err := s.medicines.GetByID(ctx, it.MedicineID)
			if err != nil {
				return fmt.Errorf("medicine %s: %w", it.MedicineID, err)
			}
			items = append(items, &PrescriptionItem{
				MedicineID:   med.ID,
				MedicineName: med.Name,
				Charge:       med.Charge,
				Count:        it.Count,
			})
		}
		if err := s.prescriptions.Create(ctx, rx); err != nil {
			return err
		}
		for _, item := range items {
			item.PrescriptionID = rx.ID
			if err := s.prescriptions.AddItem(ctx, item); err != nil {
				return err
			}
		}
		rx.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_id", rx.ID.String()).
		Str("staff_id", st.ID.String()).
		Int("items", len(rx.Items)).
		Msg("prescription created")
	return rx, nil
}

// ListPrescriptions shows admins everything and doctors their own.
func (s *Service) ListPrescriptions(ctx context.Context, caller auth.Principal, limit, offset int) ([]*Prescription, int, error) {
	if caller.IsAdmin {
		return s.prescriptions.List(ctx, nil, limit, offset)
	}
	if caller.Role != auth.RoleDoctor {
		return nil, 0, ErrForbidden
	}
	st, err := s.directory.StaffByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, 0, lookupErr(err)
	}
	return s.prescriptions.List(ctx, &st.ID, limit, offset)
}
