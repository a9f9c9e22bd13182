package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"patient", RolePatient, false},
		{"Doctor", RoleDoctor, false},
		{" nurse ", RoleNurse, false},
		{"admin", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRole_IsStaff(t *testing.T) {
	if !RoleDoctor.IsStaff() || !RoleNurse.IsStaff() {
		t.Error("expected doctor and nurse to be staff roles")
	}
	if RolePatient.IsStaff() {
		t.Error("expected patient not to be a staff role")
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal on empty context")
	}
	p := Principal{UserID: uuid.New(), Role: RoleNurse}
	got, ok := PrincipalFromContext(WithPrincipal(context.Background(), p))
	if !ok || got != p {
		t.Fatalf("expected %+v, got %+v", p, got)
	}
	if !got.Is(RoleDoctor, RoleNurse) {
		t.Error("expected nurse to match doctor-or-nurse")
	}
}
