package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/validation"
)

const MinAge = 21

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male":
		return GenderMale, nil
	case "female":
		return GenderFemale, nil
	case "other":
		return GenderOther, nil
	}
	return "", fmt.Errorf("%w: gender must be Male, Female or Other", ErrInvalid)
}

type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	Age          int       `db:"age" json:"age"`
	Address      string    `db:"address" json:"address"`
	Gender       Gender    `db:"gender" json:"gender"`
	Role         auth.Role `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Role: u.Role, IsAdmin: u.IsAdmin}
}

type Specialty struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" validate:"required,max=100"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Username  string    `db:"username" json:"username"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Staff is the clinical profile of a doctor or nurse.
type Staff struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	Username      string     `db:"username" json:"username"`
	Role          auth.Role  `db:"role" json:"role"`
	SpecialtyID   *uuid.UUID `db:"specialty_id" json:"specialty_id,omitempty"`
	SpecialtyName *string    `db:"specialty_name" json:"specialty_name,omitempty"`
	Salary        float64    `db:"salary" json:"salary"`
	Approved      bool       `db:"approved" json:"approved"`
	Available     bool       `db:"available" json:"available"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// OnDuty reports whether the staff member may receive bookings and
// assignments.
func (s *Staff) OnDuty() bool {
	return s.Approved && s.Available
}

type RegisterInput struct {
	Username  string `json:"username" validate:"required,min=3,max=150,username"`
	Email     string `json:"email" validate:"required,max=254,email"`
	Phone     string `json:"phone" validate:"required,phone"`
	Age       int    `json:"age" validate:"gte=21"`
	Address   string `json:"address" validate:"required,max=500"`
	Gender    string `json:"gender" validate:"required,oneof=Male Female Other"`
	Role      string `json:"role" validate:"required,oneof=patient doctor nurse"`
	Password  string `json:"password" validate:"required,min=8"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

// UserPatch fields are optional; a present field is checked like its
// RegisterInput counterpart.
type UserPatch struct {
	Email    *string `json:"email,omitempty" validate:"omitnil,max=254,email"`
	Phone    *string `json:"phone,omitempty" validate:"omitnil,phone"`
	Age      *int    `json:"age,omitempty" validate:"omitnil,gte=21"`
	Address  *string `json:"address,omitempty" validate:"omitnil,required,max=500"`
	Gender   *string `json:"gender,omitempty" validate:"omitnil,oneof=Male Female Other"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type StaffPatch struct {
	Salary      *float64   `json:"salary,omitempty" validate:"omitnil,gte=0"`
	Approved    *bool      `json:"approved,omitempty"`
	Available   *bool      `json:"available,omitempty"`
	SpecialtyID *uuid.UUID `json:"specialty_id,omitempty"`
}

type Session struct {
	User  *User             `json:"user"`
	Token *auth.IssuedToken `json:"token"`
}

type passwordPair struct {
	Password  string `json:"password" validate:"required,min=8"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

func validatePasswords(password, password2 string) error {
	if err := validation.Struct(&passwordPair{Password: password, Password2: password2}); err != nil {
		return invalid(err)
	}
	return nil
}

// canonicalGender maps any casing of a known gender to its stored form and
// leaves unknown values for the validator to reject.
func canonicalGender(s string) string {
	if g, err := ParseGender(s); err == nil {
		return string(g)
	}
	return s
}

// Normalize trims the input and canonicalizes email, gender and role.
func (in *RegisterInput) Normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.Gender = canonicalGender(in.Gender)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
}

// Validate normalizes the input and returns the parsed role and gender.
func (in *RegisterInput) Validate() (auth.Role, Gender, error) {
	in.Normalize()
	if err := validation.Struct(in); err != nil {
		return "", "", invalid(err)
	}
	role, err := auth.ParseRole(in.Role)
	if err != nil {
		return "", "", invalid(err)
	}
	return role, Gender(in.Gender), nil
}

func (p *UserPatch) Normalize() {
	if p.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*p.Email))
		p.Email = &v
	}
	if p.Phone != nil {
		v := strings.TrimSpace(*p.Phone)
		p.Phone = &v
	}
	if p.Address != nil {
		v := strings.TrimSpace(*p.Address)
		p.Address = &v
	}
	if p.Gender != nil {
		v := canonicalGender(*p.Gender)
		p.Gender = &v
	}
}
