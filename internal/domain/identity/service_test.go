package identity

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/mail"
)

// -- Mock Repositories --

type mockUserRepo struct {
	users map[uuid.UUID]*User

	failUpdatePassword error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return ErrUsernameTaken
		}
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	if m.failUpdatePassword != nil {
		return m.failUpdatePassword
	}
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	var result []*User
	for _, u := range m.users {
		result = append(result, u)
	}
	return result, len(result), nil
}

func (m *mockUserRepo) SearchUsernames(_ context.Context, query string, limit int) ([]string, error) {
	var names []string
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			names = append(names, u.Username)
		}
	}
	sort.Strings(names)
	return names, nil
}

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	for _, p := range m.patients {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		result = append(result, p)
	}
	return result, len(result), nil
}

type mockStaffRepo struct {
	staff map[uuid.UUID]*Staff
}

func newMockStaffRepo() *mockStaffRepo {
	return &mockStaffRepo{staff: make(map[uuid.UUID]*Staff)}
}

func (m *mockStaffRepo) Create(_ context.Context, s *Staff) error {
	s.ID = uuid.New()
	m.staff[s.ID] = s
	return nil
}

func (m *mockStaffRepo) GetByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *mockStaffRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Staff, error) {
	for _, s := range m.staff {
		if s.UserID == userID {
			return s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStaffRepo) Update(_ context.Context, s *Staff) error {
	if _, ok := m.staff[s.ID]; !ok {
		return ErrNotFound
	}
	m.staff[s.ID] = s
	return nil
}

func (m *mockStaffRepo) List(_ context.Context, limit, offset int) ([]*Staff, int, error) {
	var result []*Staff
	for _, s := range m.staff {
		result = append(result, s)
	}
	return result, len(result), nil
}

func (m *mockStaffRepo) SearchNames(_ context.Context, query string, limit int) ([]string, error) {
	var names []string
	for _, s := range m.staff {
		if strings.Contains(s.Username, query) {
			names = append(names, s.Username)
		}
	}
	return names, nil
}

type mockSpecialtyRepo struct {
	items map[uuid.UUID]*Specialty
}

func newMockSpecialtyRepo() *mockSpecialtyRepo {
	return &mockSpecialtyRepo{items: make(map[uuid.UUID]*Specialty)}
}

func (m *mockSpecialtyRepo) Create(_ context.Context, sp *Specialty) error {
	for _, existing := range m.items {
		if existing.Name == sp.Name {
			return ErrSpecialtyExists
		}
	}
	sp.ID = uuid.New()
	m.items[sp.ID] = sp
	return nil
}

func (m *mockSpecialtyRepo) GetByID(_ context.Context, id uuid.UUID) (*Specialty, error) {
	sp, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sp, nil
}

func (m *mockSpecialtyRepo) List(_ context.Context) ([]*Specialty, error) {
	var result []*Specialty
	for _, sp := range m.items {
		result = append(result, sp)
	}
	return result, nil
}

// nopTx runs fn directly; failures after the first write are not rolled back.
type nopTx struct{}

func (nopTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type recordingMailer struct {
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

var testKey = []byte("identity-test-signing-key-0123456789abcdef")

type testEnv struct {
	svc      *Service
	users    *mockUserRepo
	patients *mockPatientRepo
	staff    *mockStaffRepo
	mailer   *recordingMailer
	tokens   *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	revocations := auth.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(revocations.Close)

	env := &testEnv{
		users:    newMockUserRepo(),
		patients: newMockPatientRepo(),
		staff:    newMockStaffRepo(),
		mailer:   &recordingMailer{},
		tokens:   auth.NewTokenService(auth.JWTConfig{Issuer: "hms", SigningKey: testKey, TTL: time.Hour}),
	}
	sec := Security{
		Tokens:       env.tokens,
		Revocations:  revocations,
		Resets:       auth.NewResetTokenIssuer(testKey, time.Hour, revocations),
		Mailer:       env.mailer,
		ResetURLBase: "https://hms.example/reset",
	}
	env.svc = NewService(env.users, env.patients, env.staff, newMockSpecialtyRepo(), nopTx{}, sec, zerolog.New(io.Discard))
	return env
}

func validInput(username, role string) RegisterInput {
	return RegisterInput{
		Username:  username,
		Email:     username + "@example.com",
		Phone:     "+1 555 0100",
		Age:       30,
		Address:   "1 Main St",
		Gender:    "Female",
		Role:      role,
		Password:  "s3cret-pass",
		Password2: "s3cret-pass",
	}
}

// -- Registration --

func TestService_Register_PatientCreatesPatientProfile(t *testing.T) {
	env := newTestEnv(t)
	sess, err := env.svc.Register(context.Background(), validInput("alice", "patient"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.Token == nil || sess.Token.AccessToken == "" {
		t.Fatal("expected access token")
	}
	if sess.User.PasswordHash == "s3cret-pass" {
		t.Error("expected password to be hashed")
	}
	if _, err := env.patients.GetByUserID(context.Background(), sess.User.ID); err != nil {
		t.Errorf("expected patient profile: %v", err)
	}
	if len(env.staff.staff) != 0 {
		t.Error("expected no staff profile for a patient")
	}
}

func TestService_Register_DoctorCreatesUnapprovedStaff(t *testing.T) {
	env := newTestEnv(t)
	sess, err := env.svc.Register(context.Background(), validInput("drbob", "doctor"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	st, err := env.staff.GetByUserID(context.Background(), sess.User.ID)
	if err != nil {
		t.Fatalf("expected staff profile: %v", err)
	}
	if st.Approved || st.Available {
		t.Error("expected new staff to be neither approved nor available")
	}
}

func TestService_Register_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *RegisterInput)
	}{
		{"underage", func(in *RegisterInput) { in.Age = 20 }},
		{"password mismatch", func(in *RegisterInput) { in.Password2 = "different-pass" }},
		{"short password", func(in *RegisterInput) { in.Password, in.Password2 = "short", "short" }},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"bad phone", func(in *RegisterInput) { in.Phone = "abc" }},
		{"bad gender", func(in *RegisterInput) { in.Gender = "unknown" }},
		{"bad role", func(in *RegisterInput) { in.Role = "admin" }},
		{"missing address", func(in *RegisterInput) { in.Address = " " }},
		{"bad username", func(in *RegisterInput) { in.Username = "a" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := validInput("carol", "patient")
			tt.mutate(&in)
			_, err := env.svc.Register(context.Background(), in)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if len(env.users.users) != 0 {
				t.Error("expected no user to be created")
			}
		})
	}
}

func TestService_Register_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Register(ctx, validInput("dave", "patient")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := env.svc.Register(ctx, validInput("dave", "nurse")); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

// -- Login / logout --

func TestService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.Register(ctx, validInput("erin", "nurse"))

	sess, err := env.svc.Login(ctx, "erin", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := env.tokens.Parse(sess.Token.AccessToken)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Role != auth.RoleNurse {
		t.Errorf("expected nurse role in token, got %q", claims.Role)
	}

	if _, err := env.svc.Login(ctx, "erin", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "nobody", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestService_Login_Inactive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _ := env.svc.Register(ctx, validInput("frank", "patient"))
	env.users.users[sess.User.ID].IsActive = false

	if _, err := env.svc.Login(ctx, "frank", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for inactive user, got %v", err)
	}
}

func TestService_Logout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _ := env.svc.Register(ctx, validInput("gina", "patient"))
	claims, _ := env.tokens.Parse(sess.Token.AccessToken)

	if err := env.svc.Logout(ctx, claims); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	revoked, _ := env.svc.sec.Revocations.IsRevoked(ctx, claims.ID)
	if !revoked {
		t.Error("expected token to be revoked")
	}
	if err := env.svc.Logout(ctx, nil); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid without claims, got %v", err)
	}
}

// -- Password reset --

func resetTokenFrom(t *testing.T, msg mail.Message) string {
	t.Helper()
	idx := strings.Index(msg.Text, "?token=")
	if idx < 0 {
		t.Fatalf("no token in mail body: %s", msg.Text)
	}
	raw := strings.Fields(msg.Text[idx+len("?token="):])[0]
	tok, err := url.QueryUnescape(raw)
	if err != nil {
		t.Fatalf("unescape token: %v", err)
	}
	return tok
}

func TestService_PasswordReset_Flow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.Register(ctx, validInput("hank", "patient"))

	if err := env.svc.RequestPasswordReset(ctx, "hank@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(env.mailer.sent))
	}
	tok := resetTokenFrom(t, env.mailer.sent[0])

	if err := env.svc.ResetPassword(ctx, tok, "brand-new-pass", "brand-new-pass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := env.svc.Login(ctx, "hank", "brand-new-pass"); err != nil {
		t.Errorf("expected login with new password: %v", err)
	}

	if err := env.svc.ResetPassword(ctx, tok, "another-pass1", "another-pass1"); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Errorf("expected reused token to be invalid, got %v", err)
	}
}

func TestService_PasswordReset_FailedUpdateKeepsToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.Register(ctx, validInput("jude", "patient"))
	env.svc.RequestPasswordReset(ctx, "jude@example.com")
	tok := resetTokenFrom(t, env.mailer.sent[0])

	dbErr := errors.New("connection reset")
	env.users.failUpdatePassword = dbErr
	if err := env.svc.ResetPassword(ctx, tok, "brand-new-pass", "brand-new-pass"); !errors.Is(err, dbErr) {
		t.Fatalf("expected update error, got %v", err)
	}

	env.users.failUpdatePassword = nil
	if err := env.svc.ResetPassword(ctx, tok, "brand-new-pass", "brand-new-pass"); err != nil {
		t.Fatalf("expected token to survive a failed update, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "jude", "brand-new-pass"); err != nil {
		t.Errorf("expected login with new password: %v", err)
	}
}

func TestService_PasswordReset_UnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("expected success for unknown email, got %v", err)
	}
	if len(env.mailer.sent) != 0 {
		t.Error("expected no mail for unknown email")
	}
}

func TestService_PasswordReset_InvalidatedByPasswordChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _ := env.svc.Register(ctx, validInput("ivy", "patient"))
	env.svc.RequestPasswordReset(ctx, "ivy@example.com")
	tok := resetTokenFrom(t, env.mailer.sent[0])

	if err := env.svc.ChangePassword(ctx, sess.User.ID, "changed-pass", "changed-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if err := env.svc.ResetPassword(ctx, tok, "brand-new-pass", "brand-new-pass"); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid after password change, got %v", err)
	}
}

func TestService_PasswordReset_BadToken(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.ResetPassword(context.Background(), "garbage", "brand-new-pass", "brand-new-pass"); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

// -- Users --

func TestService_UpdateUser_SelfOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := env.svc.Register(ctx, validInput("jack", "patient"))
	b, _ := env.svc.Register(ctx, validInput("kate", "patient"))

	phone := "+1 555 0199"
	updated, err := env.svc.UpdateUser(ctx, a.User.Principal(), a.User.ID, UserPatch{Phone: &phone})
	if err != nil {
		t.Fatalf("self update: %v", err)
	}
	if updated.Phone != phone {
		t.Errorf("expected phone %s, got %s", phone, updated.Phone)
	}

	if _, err := env.svc.UpdateUser(ctx, b.User.Principal(), a.User.ID, UserPatch{Phone: &phone}); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for other user, got %v", err)
	}

	inactive := false
	if _, err := env.svc.UpdateUser(ctx, a.User.Principal(), a.User.ID, UserPatch{IsActive: &inactive}); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected non-admin deactivation to be forbidden, got %v", err)
	}

	admin := auth.Principal{UserID: uuid.New(), Role: auth.RoleDoctor, IsAdmin: true}
	updated, err = env.svc.UpdateUser(ctx, admin, a.User.ID, UserPatch{IsActive: &inactive})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if updated.IsActive {
		t.Error("expected user to be deactivated")
	}

	young := 18
	if _, err := env.svc.UpdateUser(ctx, admin, a.User.ID, UserPatch{Age: &young}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for age, got %v", err)
	}
}

func TestService_DeleteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := env.svc.Register(ctx, validInput("liam", "patient"))
	b, _ := env.svc.Register(ctx, validInput("mona", "patient"))

	if err := env.svc.DeleteUser(ctx, b.User.Principal(), a.User.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := env.svc.DeleteUser(ctx, a.User.Principal(), a.User.ID); err != nil {
		t.Fatalf("self delete: %v", err)
	}
	if _, err := env.svc.Profile(ctx, a.User.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// -- Specialties & staff --

func TestService_Specialties(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sp, err := env.svc.AddSpecialty(ctx, "Cardiology")
	if err != nil {
		t.Fatalf("AddSpecialty: %v", err)
	}
	if _, err := env.svc.AddSpecialty(ctx, "Cardiology"); !errors.Is(err, ErrSpecialtyExists) {
		t.Errorf("expected ErrSpecialtyExists, got %v", err)
	}
	if _, err := env.svc.AddSpecialty(ctx, "  "); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}

	sess, _ := env.svc.Register(ctx, validInput("drnora", "doctor"))
	st, _ := env.svc.GetStaffByUserID(ctx, sess.User.ID)

	approved, available, salary := true, true, 5000.0
	updated, err := env.svc.UpdateStaff(ctx, st.ID, StaffPatch{
		Approved: &approved, Available: &available, Salary: &salary, SpecialtyID: &sp.ID,
	})
	if err != nil {
		t.Fatalf("UpdateStaff: %v", err)
	}
	if !updated.OnDuty() {
		t.Error("expected staff to be on duty")
	}
	if updated.SpecialtyName == nil || *updated.SpecialtyName != "Cardiology" {
		t.Error("expected specialty name to be set")
	}

	missing := uuid.New()
	if _, err := env.svc.UpdateStaff(ctx, st.ID, StaffPatch{SpecialtyID: &missing}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown specialty, got %v", err)
	}
	negative := -1.0
	if _, err := env.svc.UpdateStaff(ctx, st.ID, StaffPatch{Salary: &negative}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for negative salary, got %v", err)
	}
}

func TestService_CreateAdmin(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.svc.CreateAdmin(context.Background(), validInput("root", "doctor"))
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if !u.IsAdmin {
		t.Error("expected admin flag")
	}
}
