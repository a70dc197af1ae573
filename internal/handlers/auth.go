package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"gardenfeed/internal/feed"
	"gardenfeed/internal/middleware"
	"gardenfeed/internal/models"
	"gardenfeed/internal/session"
	"gardenfeed/internal/store"
)

// totpIssuer is shown in authenticator apps next to the account name.
const totpIssuer = "Gardenfeed"

// UserRepository is the subset of store.UserStore the auth handlers use.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, email, password, displayName string) (*models.User, error)
	SetTOTPSecret(ctx context.Context, userID uuid.UUID, secret string) error
	EnableTOTP(ctx context.Context, userID uuid.UUID) error
	CheckPassword(user *models.User, password string) bool
}

// SessionManager creates and destroys cookie sessions.
type SessionManager interface {
	Create(ctx context.Context, w http.ResponseWriter, data *session.Data) (string, error)
	Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// TokenIssuer signs bearer tokens.
type TokenIssuer interface {
	Issue(userID uuid.UUID, displayName string) (string, time.Time, error)
}

// FeedDropper releases the feed state of a session.
type FeedDropper interface {
	Drop(key string)
}

// Auth groups all authentication-related HTTP handlers.
type Auth struct {
	users    UserRepository
	sessions SessionManager
	tokens   TokenIssuer
	feeds    FeedDropper
}

// NewAuth creates a new Auth handler group.
func NewAuth(users UserRepository, sessions SessionManager, tokens TokenIssuer, feeds FeedDropper) *Auth {
	return &Auth{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		feeds:    feeds,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Token       bool   `json:"token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
	Token    bool   `json:"token"`
}

// authResponse is returned after a successful sign-in. Token fields are
// only set when the client asked for a bearer token.
type authResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// Register creates an account and signs the new user in.
func (a *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	if msg := validateRegistration(req.Email, req.Password, req.DisplayName); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	user, err := a.users.Create(r.Context(), req.Email, req.Password, strings.TrimSpace(req.DisplayName))
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusConflict, "An account with this email already exists.")
		return
	}
	if err != nil {
		slog.Error("register failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not create your account.")
		return
	}

	slog.Info("user registered", "user_id", user.ID)
	a.signIn(w, r, user, req.Token, http.StatusCreated)
}

// Login checks credentials, and the TOTP code when 2FA is enabled.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := a.users.FindByEmail(r.Context(), normalizeEmail(req.Email))
	if err != nil {
		slog.Error("login lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}
	if user == nil || !a.users.CheckPassword(user, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	}

	if user.Requires2FA() {
		code := strings.TrimSpace(req.Code)
		if code == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":               "Two-factor code required.",
				"two_factor_required": true,
			})
			return
		}
		if !totp.Validate(code, *user.TOTPSecret) {
			writeError(w, http.StatusUnauthorized, "Invalid two-factor code.")
			return
		}
	}

	a.signIn(w, r, user, req.Token, http.StatusOK)
}

// signIn issues a bearer token or a session cookie for user.
func (a *Auth) signIn(w http.ResponseWriter, r *http.Request, user *models.User, bearer bool, status int) {
	if bearer {
		token, exp, err := a.tokens.Issue(user.ID, user.DisplayName)
		if err != nil {
			slog.Error("token issue failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error.")
			return
		}
		writeJSON(w, status, authResponse{User: user, Token: token, ExpiresAt: &exp})
		return
	}

	_, err := a.sessions.Create(r.Context(), w, &session.Data{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	})
	if err != nil {
		slog.Error("session create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	writeJSON(w, status, authResponse{User: user})
}

// Logout ends the cookie session and releases its feed state. Bearer
// tokens are stateless and simply expire.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident != nil && ident.SessionID != "" {
		a.feeds.Drop(feed.SessionKey(ident.SessionID))
	}
	if ident == nil || !ident.Bearer {
		if err := a.sessions.Destroy(r.Context(), w, r); err != nil {
			slog.Error("session destroy failed", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in user.
func (a *Auth) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// twoFASetupResponse carries what an authenticator app needs to enrol.
type twoFASetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCodePNG  string `json:"qr_code_png"` // base64
}

// TwoFASetup generates a new TOTP secret and returns it with a QR code.
// 2FA stays off until TwoFAEnable confirms a code.
func (a *Auth) TwoFASetup(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	if user.TOTPEnabled {
		writeError(w, http.StatusConflict, "Two-factor authentication is already enabled.")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		slog.Error("totp generate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	if err := a.users.SetTOTPSecret(r.Context(), user.ID, key.Secret()); err != nil {
		slog.Error("save totp secret failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	qrPNG, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		slog.Error("qr code generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	writeJSON(w, http.StatusOK, twoFASetupResponse{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCodePNG:  base64.StdEncoding.EncodeToString(qrPNG),
	})
}

// TwoFAEnable verifies a code against the pending secret and turns 2FA on.
func (a *Auth) TwoFAEnable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	if user.TOTPSecret == nil {
		writeError(w, http.StatusBadRequest, "Start two-factor setup first.")
		return
	}
	if !totp.Validate(strings.TrimSpace(req.Code), *user.TOTPSecret) {
		writeError(w, http.StatusBadRequest, "Invalid code. Please try again.")
		return
	}

	if err := a.users.EnableTOTP(r.Context(), user.ID); err != nil {
		slog.Error("enable totp failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	slog.Info("2fa enabled", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"totp_enabled": true})
}

// currentUser loads the signed-in user, answering 401 when the account no
// longer exists.
func (a *Auth) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "Please sign in to continue.")
		return nil, false
	}
	user, err := a.users.FindByID(r.Context(), ident.UserID)
	if err != nil {
		slog.Error("user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error.")
		return nil, false
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Please sign in to continue.")
		return nil, false
	}
	return user, true
}
