// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/handlers"
	"codeberg.org/oliverandrich/player-accounts/internal/i18n"
	"codeberg.org/oliverandrich/player-accounts/internal/services/accounts"
	"codeberg.org/oliverandrich/player-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/player-accounts/internal/testutil"
)

func init() {
	_ = i18n.Init()
}

type harness struct {
	e        *echo.Echo
	h        *handlers.Handlers
	manager  *accounts.Manager
	stats    *testutil.FakeStats
	notifier *testutil.FakeNotifier
	sessions *auth.SessionIssuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	_, repo := testutil.NewTestDB(t)

	sessions, err := auth.NewSessionIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	hs := &harness{
		e:        echo.New(),
		stats:    &testutil.FakeStats{Document: map[string]any{"wins": float64(2)}},
		notifier: &testutil.FakeNotifier{},
		sessions: sessions,
	}
	hs.manager = accounts.NewManager(accounts.Deps{
		Store:    repo,
		Hasher:   auth.NewBcryptHasher(bcrypt.MinCost, 2),
		Verifier: &testutil.FakeVerifier{Tickets: map[string]string{"ticket-1": "76561198000000001"}},
	})
	prov := accounts.NewProvisioner(hs.manager, hs.stats, hs.notifier, accounts.ProvisionerConfig{
		CompensationBackoff: time.Millisecond,
	})
	hs.h = handlers.New(prov, sessions)
	return hs
}

// call runs handler with a JSON body and returns the recorder.
func (hs *harness) call(handler echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	c, rec := testutil.NewEchoContext(hs.e, http.MethodPost, "/", strings.NewReader(body))
	ctx := i18n.WithLocale(c.Request().Context(), language.English)
	c.SetRequest(c.Request().WithContext(ctx))
	_ = handler(c)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const aliceJSON = `{"playerName":"Alice","password":"hunter22","email":"alice@example.com","birthDate":"1990-05-01"}`

func (hs *harness) createVerified(t *testing.T) {
	t.Helper()
	rec := hs.call(hs.h.CreateAccount, aliceJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user, err := hs.manager.GetByName(context.Background(), "Alice")
	require.NoError(t, err)
	_, err = hs.manager.VerifyEmail(context.Background(), user.Email, user.VerificationToken)
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	hs := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := hs.e.NewContext(req, rec)

	err := hs.h.Health(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateAccount(t *testing.T) {
	hs := newHarness(t)

	rec := hs.call(hs.h.CreateAccount, aliceJSON)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Alice", body["playerName"])
	assert.Equal(t, "ALICE@EXAMPLE.COM", body["email"])

	name, err := hs.sessions.Parse(body["sessionToken"].(string))
	require.NoError(t, err)
	assert.Equal(t, "ALICE", name)
	assert.Equal(t, []string{"ALICE"}, hs.stats.Created)
}

func TestCreateAccount_FormBody(t *testing.T) {
	hs := newHarness(t)
	form := url.Values{
		"playerName": {"Alice"},
		"password":   {"hunter22"},
		"email":      {"alice@example.com"},
		"birthDate":  {"1990-05-01T00:00:00Z"},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()

	require.NoError(t, hs.h.CreateAccount(hs.e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCreateAccount_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{
			name:    "missing field",
			body:    `{"playerName":"Alice","email":"a@b.co","birthDate":"1990-05-01"}`,
			status:  http.StatusBadRequest,
			message: "password is missing",
		},
		{
			name:    "bad birth date",
			body:    `{"playerName":"Alice","password":"hunter22","email":"a@b.co","birthDate":"soon"}`,
			status:  http.StatusBadRequest,
			message: "Error parsing birthDate: soon",
		},
		{
			name:   "blacklisted name",
			body:   `{"playerName":"shitstain","password":"hunter22","email":"a@b.co","birthDate":"1990-05-01"}`,
			status: http.StatusBadRequest,
		},
		{
			name:    "malformed body",
			body:    `{"playerName":`,
			status:  http.StatusBadRequest,
			message: "playerName is missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t)
			rec := hs.call(hs.h.CreateAccount, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			require.NotEmpty(t, body["error"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["error"])
			}
		})
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.call(hs.h.CreateAccount, aliceJSON).Code)

	rec := hs.call(hs.h.CreateAccount, aliceJSON)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "That email is already in use.", decode(t, rec)["error"])
}

func TestCreateAccount_StatsDown(t *testing.T) {
	hs := newHarness(t)
	hs.stats.CreateErr = errors.New("connection refused")

	rec := hs.call(hs.h.CreateAccount, aliceJSON)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Failed to create account stats. Try a different name or try again later.", decode(t, rec)["error"])

	_, err := hs.manager.GetByName(context.Background(), "Alice")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateExternalAccount(t *testing.T) {
	hs := newHarness(t)

	rec := hs.call(hs.h.CreateExternalAccount,
		`{"playerName":"Alice","password":"hunter22","email":"alice@example.com","birthDate":"1990-05-01","steamAuthSessionTicket":"ticket-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, hs.notifier.Verifications, 1)

	rec = hs.call(hs.h.CreateExternalAccount, aliceJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "steamAuthSessionTicket is missing", decode(t, rec)["error"])
}

func TestLogin(t *testing.T) {
	hs := newHarness(t)
	hs.createVerified(t)

	rec := hs.call(hs.h.Login, `{"playerName":"alice","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Alice", decode(t, rec)["playerName"])

	rec = hs.call(hs.h.Login, `{"playerName":"alice","password":"nope-nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Password is incorrect", decode(t, rec)["error"])

	rec = hs.call(hs.h.Login, `{"playerName":"bob","password":"hunter22"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogin_Unverified(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.call(hs.h.CreateAccount, aliceJSON).Code)

	rec := hs.call(hs.h.LoginByEmail, `{"email":"alice@example.com","password":"hunter22"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You must verify your email address before logging in.", decode(t, rec)["error"])
}

func TestLoginExternal(t *testing.T) {
	hs := newHarness(t)
	rec := hs.call(hs.h.CreateExternalAccount,
		`{"playerName":"Alice","password":"hunter22","email":"alice@example.com","birthDate":"1990-05-01","steamAuthSessionTicket":"ticket-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	user, err := hs.manager.GetByName(context.Background(), "Alice")
	require.NoError(t, err)
	_, err = hs.manager.VerifyEmail(context.Background(), user.Email, user.VerificationToken)
	require.NoError(t, err)

	rec = hs.call(hs.h.LoginExternal, `{"steamAuthSessionTicket":"ticket-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = hs.call(hs.h.LoginExternal, `{"steamAuthSessionTicket":"forged"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerify(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.call(hs.h.CreateAccount, aliceJSON).Code)
	user, err := hs.manager.GetByName(context.Background(), "Alice")
	require.NoError(t, err)

	rec := hs.call(hs.h.Verify, `{"email":"alice@example.com","verificationToken":"wrong"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.call(hs.h.Verify, `{"email":"alice@example.com","verificationToken":"`+user.VerificationToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode(t, rec)["sessionToken"])
}

func TestResendVerification(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.call(hs.h.CreateAccount, aliceJSON).Code)

	rec := hs.call(hs.h.ResendVerification, `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Len(t, hs.notifier.Verifications, 1)

	hs.notifier.Err = apperr.ErrMailFailed
	rec = hs.call(hs.h.ResendVerification, `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	hs := newHarness(t)
	hs.createVerified(t)

	rec := hs.call(hs.h.RequestPasswordReset, `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"email":"ALICE@EXAMPLE.COM"}`, rec.Body.String())

	token := hs.notifier.LastReset().Token
	body := `{"email":"alice@example.com","passwordResetToken":"` + token + `","newPassword":"correct-horse"}`

	rec = hs.call(hs.h.ResetPassword, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = hs.call(hs.h.ResetPassword, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This password reset link is invalid.", decode(t, rec)["error"])

	rec = hs.call(hs.h.Login, `{"playerName":"Alice","password":"correct-horse"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteAccount(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.call(hs.h.CreateAccount, aliceJSON).Code)

	rec := hs.call(hs.h.DeleteAccount, `{"playerName":"Alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, []string{"ALICE"}, hs.stats.Deleted)

	rec = hs.call(hs.h.DeleteAccount, `{"playerName":"Alice"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteLocalAccount(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.call(hs.h.CreateAccount, aliceJSON).Code)

	rec := hs.call(hs.h.DeleteLocalAccount, `{"playerName":"Alice"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, hs.stats.Deleted)
}

func TestAccountInfo(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.call(hs.h.CreateAccount, aliceJSON).Code)

	rec := hs.call(hs.h.AccountInfo, `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "ALICE@EXAMPLE.COM", body["email"])
	assert.Equal(t, false, body["verified"])
	assert.InDelta(t, 2, body["wins"], 0)

	rec = hs.call(hs.h.AccountInfo, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAccountInfo(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.call(hs.h.CreateAccount, aliceJSON).Code)

	rec := hs.call(hs.h.UpdateAccountInfo,
		`{"playerUniqueName":"ALICE","verified":true,"currentXP":10,"currentLevel":2,"wins":3,"losses":0,"playerInventory":[]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["verified"])
	require.Len(t, hs.stats.Edits, 1)
	assert.Equal(t, int64(3), hs.stats.Edits[0].Wins)

	rec = hs.call(hs.h.UpdateAccountInfo, `{"playerUniqueName":"ALICE","verified":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "currentXP is missing", decode(t, rec)["error"])
}

func TestCountAccounts(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.call(hs.h.CreateAccount, aliceJSON).Code)

	rec := hs.call(hs.h.CountAccounts, ``)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())
}

func TestErrorResponse(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.German)

	status, msg := handlers.ErrorResponse(ctx, apperr.ErrDuplicateName)
	assert.Equal(t, http.StatusConflict, status)
	assert.NotEmpty(t, msg)

	status, msg = handlers.ErrorResponse(ctx, apperr.Infra("find user", errors.New("disk I/O error")))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, msg, "disk")

	status, _ = handlers.ErrorResponse(ctx, apperr.ErrResetExpired)
	assert.Equal(t, http.StatusGone, status)
}
