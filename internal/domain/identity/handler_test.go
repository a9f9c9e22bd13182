package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/validation"
)

func newTestHandler(t *testing.T) (*Handler, *testEnv, *echo.Echo) {
	t.Helper()
	env := newTestEnv(t)
	e := echo.New()
	e.Validator = validation.New()
	return NewHandler(env.svc), env, e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func withPrincipal(req *http.Request, p auth.Principal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func expectHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d", code, he.Code)
	}
}

const registerBody = `{"username":"olga","email":"olga@example.com","phone":"5550100100","age":40,
"address":"2 High St","gender":"female","role":"patient","password":"s3cret-pass","password2":"s3cret-pass"}`

func TestHandler_Register(t *testing.T) {
	h, _, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", registerBody), rec)

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	var body map[string]json.RawMessage
	json.Unmarshal(rec.Body.Bytes(), &body)
	if _, ok := body["token"]; !ok {
		t.Error("expected token in response")
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Error("password hash must not be serialized")
	}
}

func TestHandler_Register_Invalid(t *testing.T) {
	h, _, e := newTestHandler(t)
	body := strings.Replace(registerBody, `"age":40`, `"age":19`, 1)
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder())
	expectHTTPStatus(t, h.Register(c), http.StatusBadRequest)
}

func TestHandler_Register_Conflict(t *testing.T) {
	h, _, e := newTestHandler(t)
	c := e.NewContext(jsonRequest(http.MethodPost, "/", registerBody), httptest.NewRecorder())
	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c = e.NewContext(jsonRequest(http.MethodPost, "/", registerBody), httptest.NewRecorder())
	expectHTTPStatus(t, h.Register(c), http.StatusConflict)
}

func TestHandler_Login(t *testing.T) {
	h, env, e := newTestHandler(t)
	env.svc.Register(context.Background(), validInput("pete", "doctor"))

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"username":"pete","password":"s3cret-pass"}`), rec)
	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{"username":"pete","password":"nope-nope"}`), httptest.NewRecorder())
	expectHTTPStatus(t, h.Login(c), http.StatusUnauthorized)
}

func TestHandler_RequestPasswordReset_AlwaysAccepted(t *testing.T) {
	h, env, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"email":"nobody@example.com"}`), rec)
	if err := h.RequestPasswordReset(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rec.Code)
	}
	if len(env.mailer.sent) != 0 {
		t.Error("expected no mail to be sent")
	}

	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{}`), httptest.NewRecorder())
	expectHTTPStatus(t, h.RequestPasswordReset(c), http.StatusBadRequest)
}

func TestHandler_Me(t *testing.T) {
	h, env, e := newTestHandler(t)
	sess, _ := env.svc.Register(context.Background(), validInput("quinn", "nurse"))

	rec := httptest.NewRecorder()
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), sess.User.Principal())
	c := e.NewContext(req, rec)
	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var u User
	json.Unmarshal(rec.Body.Bytes(), &u)
	if u.Username != "quinn" {
		t.Errorf("expected quinn, got %q", u.Username)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	expectHTTPStatus(t, h.Me(c), http.StatusUnauthorized)
}

func TestHandler_UpdateUser_Forbidden(t *testing.T) {
	h, env, e := newTestHandler(t)
	a, _ := env.svc.Register(context.Background(), validInput("rita", "patient"))
	b, _ := env.svc.Register(context.Background(), validInput("sam", "patient"))

	req := withPrincipal(jsonRequest(http.MethodPatch, "/", `{"address":"elsewhere"}`), b.User.Principal())
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.User.ID.String())
	expectHTTPStatus(t, h.UpdateUser(c), http.StatusForbidden)
}

func TestHandler_DeleteUser_InvalidID(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := withPrincipal(httptest.NewRequest(http.MethodDelete, "/", nil), auth.Principal{UserID: uuid.New(), Role: auth.RolePatient})
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPStatus(t, h.DeleteUser(c), http.StatusBadRequest)
}

func TestHandler_GetStaff_NotFound(t *testing.T) {
	h, _, e := newTestHandler(t)
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPStatus(t, h.GetStaff(c), http.StatusNotFound)
}

func TestHandler_AddSpecialty(t *testing.T) {
	h, _, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"name":"Neurology"}`), rec)
	if err := h.AddSpecialty(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{"name":"Neurology"}`), httptest.NewRecorder())
	expectHTTPStatus(t, h.AddSpecialty(c), http.StatusConflict)
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler(t)
	h.RegisterRoutes(e.Group("/api/v1"), e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/auth/register": false,
		"POST /api/v1/auth/login":    false,
		"GET /api/v1/users/me":       false,
		"PUT /api/v1/staff/:id":      false,
		"GET /api/v1/patients/:id":   false,
		"POST /api/v1/specialties":   false,
		"DELETE /api/v1/users/:id":   false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestHandler_TokenStopsWorkingForInactiveUser(t *testing.T) {
	h, env, e := newTestHandler(t)
	h.RegisterRoutes(e.Group("/api/v1"), e.Group("/api/v1", auth.JWTMiddleware(env.tokens, nil, env.svc)))
	ctx := context.Background()

	me := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}
	admin := auth.Principal{UserID: uuid.New(), Role: auth.RoleDoctor, IsAdmin: true}

	sess, err := env.svc.Register(ctx, validInput("tina", "patient"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if code := me(sess.Token.AccessToken); code != http.StatusOK {
		t.Fatalf("expected 200 for active user, got %d", code)
	}

	inactive := false
	if _, err := env.svc.UpdateUser(ctx, admin, sess.User.ID, UserPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if code := me(sess.Token.AccessToken); code != http.StatusUnauthorized {
		t.Errorf("expected 401 after deactivation, got %d", code)
	}

	other, err := env.svc.Register(ctx, validInput("uma", "patient"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := env.svc.DeleteUser(ctx, admin, other.User.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if code := me(other.Token.AccessToken); code != http.StatusUnauthorized {
		t.Errorf("expected 401 after deletion, got %d", code)
	}
}

func TestHandler_ChangePassword_Validation(t *testing.T) {
	h, env, e := newTestHandler(t)
	sess, err := env.svc.Register(context.Background(), validInput("vera", "patient"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, body := range []string{
		`{"password":"short","password2":"short"}`,
		`{"password":"long-enough-1","password2":"long-enough-2"}`,
		`{}`,
	} {
		req := withPrincipal(jsonRequest(http.MethodPost, "/", body), sess.User.Principal())
		expectHTTPStatus(t, h.ChangePassword(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)
	}
}
