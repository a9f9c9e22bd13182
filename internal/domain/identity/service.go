package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/mail"
	"github.com/hms/hms/internal/platform/metrics"
	"github.com/hms/hms/internal/platform/validation"
)

const searchLimit = 20

// Security bundles the credential collaborators of the service.
type Security struct {
	Tokens       *auth.TokenService
	Revocations  auth.RevocationStore
	Resets       auth.ResetTokenIssuer
	Mailer       mail.Mailer
	ResetURLBase string
}

type Service struct {
	users       UserRepository
	patients    PatientRepository
	staff       StaffRepository
	specialties SpecialtyRepository
	tx          db.Transactor
	sec         Security
	logger      zerolog.Logger
}

func NewService(users UserRepository, patients PatientRepository, staff StaffRepository,
	specialties SpecialtyRepository, tx db.Transactor, sec Security, logger zerolog.Logger) *Service {
	return &Service{
		users:       users,
		patients:    patients,
		staff:       staff,
		specialties: specialties,
		tx:          tx,
		sec:         sec,
		logger:      logger,
	}
}

// -- Registration & sessions --

// Register creates the user and, in the same transaction, the profile its
// role requires: a Staff record for doctors and nurses, a Patient record
// for patients.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	u, err := s.createUser(ctx, in, false)
	if err != nil {
		metrics.IncAuthEvent("register", "rejected")
		return nil, err
	}
	metrics.IncAuthEvent("register", "ok")
	return s.session(u)
}

// CreateAdmin registers a user carrying administrative rights.
func (s *Service) CreateAdmin(ctx context.Context, in RegisterInput) (*User, error) {
	return s.createUser(ctx, in, true)
}

func (s *Service) createUser(ctx context.Context, in RegisterInput, admin bool) (*User, error) {
	role, gender, err := in.Validate()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		Age:          in.Age,
		Address:      in.Address,
		Gender:       gender,
		Role:         role,
		IsActive:     true,
		IsAdmin:      admin,
		PasswordHash: hash,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		return s.createProfile(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) createProfile(ctx context.Context, u *User) error {
	switch u.Role {
	case auth.RoleDoctor, auth.RoleNurse:
		return s.staff.Create(ctx, &Staff{UserID: u.ID, Username: u.Username, Role: u.Role})
	case auth.RolePatient:
		return s.patients.Create(ctx, &Patient{UserID: u.ID, Username: u.Username})
	}
	return fmt.Errorf("%w: unknown role %q", ErrInvalid, u.Role)
}

func (s *Service) session(u *User) (*Session, error) {
	tok, err := s.sec.Tokens.Issue(u.Principal())
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: tok}, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.IncAuthEvent("login", "rejected")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil || !u.IsActive {
		metrics.IncAuthEvent("login", "rejected")
		return nil, ErrInvalidCredentials
	}
	metrics.IncAuthEvent("login", "ok")
	return s.session(u)
}

// Logout revokes the presented access token until it expires.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return auth.ErrTokenInvalid
	}
	_, err := s.sec.Revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	return err
}

func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, password, password2 string) error {
	if err := validatePasswords(password, password2); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// -- Password reset --

// RequestPasswordReset mails a reset link when the address belongs to a
// user. Callers always see success so addresses cannot be enumerated.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	token, err := s.sec.Resets.Issue(ctx, u.ID, u.PasswordHash)
	if err != nil {
		return err
	}

	link := s.sec.ResetURLBase + "?token=" + url.QueryEscape(token)
	msg := mail.Message{
		To:      u.Email,
		ToName:  u.Username,
		Subject: "Reset your password",
		Text:    fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password:\n%s\n", u.Username, link),
	}
	if err := s.sec.Mailer.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID.String()).Msg("send password reset mail")
	}
	metrics.IncAuthEvent("password_reset_request", "ok")
	return nil
}

// ResetPassword consumes a reset token. Tokens are single-use and stop
// working once the password they were issued against changes.
func (s *Service) ResetPassword(ctx context.Context, token, password, password2 string) error {
	grant, err := s.sec.Resets.Verify(ctx, token)
	if err != nil {
		metrics.IncAuthEvent("password_reset", "rejected")
		return err
	}
	if err := validatePasswords(password, password2); err != nil {
		return err
	}

	u, err := s.users.GetByID(ctx, grant.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.ErrTokenInvalid
		}
		return err
	}
	if !grant.Matches(u.PasswordHash) {
		return auth.ErrTokenInvalid
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	// The password changes first: a failed update leaves the token usable, and
	// once the hash changes the grant no longer matches even if Consume fails.
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return err
	}
	if err := s.sec.Resets.Consume(ctx, grant); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("reset token not revoked after password change")
	}
	metrics.IncAuthEvent("password_reset", "ok")
	return nil
}

// -- Users --

func canManage(caller auth.Principal, userID uuid.UUID) bool {
	return caller.IsAdmin || caller.UserID == userID
}

func (s *Service) UpdateUser(ctx context.Context, caller auth.Principal, id uuid.UUID, patch UserPatch) (*User, error) {
	if !canManage(caller, id) {
		return nil, ErrForbidden
	}
	if patch.IsActive != nil && !caller.IsAdmin {
		return nil, ErrForbidden
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Normalize()
	if err := validation.Struct(&patch); err != nil {
		return nil, invalid(err)
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Phone != nil {
		u.Phone = *patch.Phone
	}
	if patch.Age != nil {
		u.Age = *patch.Age
	}
	if patch.Address != nil {
		u.Address = *patch.Address
	}
	if patch.Gender != nil {
		u.Gender = Gender(*patch.Gender)
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, caller auth.Principal, id uuid.UUID) error {
	if !canManage(caller, id) {
		return ErrForbidden
	}
	return s.users.Delete(ctx, id)
}

// IsActive reports whether userID still exists and is active. It backs the
// per-request check in auth.JWTMiddleware so deactivation and deletion take
// effect before outstanding tokens expire.
func (s *Service) IsActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsActive, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *Service) SearchUsernames(ctx context.Context, query string) ([]string, error) {
	return s.users.SearchUsernames(ctx, query, searchLimit)
}

// -- Specialties --

func (s *Service) AddSpecialty(ctx context.Context, name string) (*Specialty, error) {
	sp := &Specialty{Name: strings.TrimSpace(name)}
	if err := validation.Struct(sp); err != nil {
		return nil, invalid(err)
	}
	if err := s.specialties.Create(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) ListSpecialties(ctx context.Context) ([]*Specialty, error) {
	return s.specialties.List(ctx)
}

// -- Staff --

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.staff.GetByID(ctx, id)
}

func (s *Service) GetStaffByUserID(ctx context.Context, userID uuid.UUID) (*Staff, error) {
	return s.staff.GetByUserID(ctx, userID)
}

func (s *Service) UpdateStaff(ctx context.Context, id uuid.UUID, patch StaffPatch) (*Staff, error) {
	if err := validation.Struct(&patch); err != nil {
		return nil, invalid(err)
	}
	st, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Salary != nil {
		st.Salary = *patch.Salary
	}
	if patch.Approved != nil {
		st.Approved = *patch.Approved
	}
	if patch.Available != nil {
		st.Available = *patch.Available
	}
	if patch.SpecialtyID != nil {
		sp, err := s.specialties.GetByID(ctx, *patch.SpecialtyID)
		if err != nil {
			return nil, err
		}
		st.SpecialtyID = &sp.ID
		st.SpecialtyName = &sp.Name
	}
	if err := s.staff.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) ListStaff(ctx context.Context, limit, offset int) ([]*Staff, int, error) {
	return s.staff.List(ctx, limit, offset)
}

func (s *Service) SearchStaffNames(ctx context.Context, query string) ([]string, error) {
	return s.staff.SearchNames(ctx, query, searchLimit)
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return s.patients.GetByUserID(ctx, userID)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}
