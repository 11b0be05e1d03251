package handlers

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/GHutch55/fastzero/api/v1/database"
	"github.com/GHutch55/fastzero/api/v1/middleware"
	"github.com/GHutch55/fastzero/api/v1/models"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenType        = "bearer"
	loginFailureText = "Incorrect email or password"
)

// CredentialStore resolves the account a login names
type CredentialStore interface {
	GetUserByEmail(ctx context.Context, email string) (*database.UserWithPassword, error)
}

type AuthHandler struct {
	Users          CredentialStore
	AuthMiddleware *middleware.AuthMiddleware
	Validate       *validator.Validate
	Log            logrus.FieldLogger
	FailureDelay   time.Duration
}

func NewAuthHandler(users CredentialStore, authMiddleware *middleware.AuthMiddleware, validate *validator.Validate, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		Users:          users,
		AuthMiddleware: authMiddleware,
		Validate:       validate,
		Log:            log,
		FailureDelay:   100 * time.Millisecond,
	}
}

// IssueToken exchanges an email and password for an access token
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	loginReq, err := decodeLoginRequest(r)
	if err != nil {
		SendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Validate.Struct(loginReq); err != nil {
		if fields, ok := validationFields(err); ok {
			SendValidationError(w, fields)
			return
		}
		SendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.Users.GetUserByEmail(r.Context(), loginReq.Username)
	if err != nil {
		if !database.IsUserNotFoundError(err) {
			h.Log.WithError(err).Error("failed to look up login credentials")
			SendError(w, "Unable to process request at this time", http.StatusInternalServerError)
			return
		}
		// Use generic message to prevent email enumeration
		h.rejectLogin(w)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(loginReq.Password)); err != nil {
		h.rejectLogin(w)
		return
	}

	h.sendToken(w, &user.User)
}

// RefreshToken issues a fresh token for the authenticated caller
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		SendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	h.sendToken(w, user)
}

func (h *AuthHandler) sendToken(w http.ResponseWriter, user *models.User) {
	token, err := h.AuthMiddleware.GenerateToken(user)
	if err != nil {
		h.Log.WithError(err).WithField("user_id", user.ID).Error("failed to generate token")
		SendError(w, "Failed to generate authentication token", http.StatusInternalServerError)
		return
	}

	SendJSON(w, models.Token{AccessToken: token, TokenType: tokenType}, http.StatusOK)
}

func (h *AuthHandler) rejectLogin(w http.ResponseWriter) {
	// Add a small delay to blunt timing attacks
	time.Sleep(h.FailureDelay)
	w.Header().Set("WWW-Authenticate", "Bearer")
	SendError(w, loginFailureText, http.StatusUnauthorized)
}

// decodeLoginRequest reads the OAuth2 password form, or a JSON body. Any other
// content type yields empty credentials, which fail validation.
func decodeLoginRequest(r *http.Request) (*models.LoginRequest, error) {
	var loginReq models.LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
			return nil, err
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		loginReq.Username = r.PostForm.Get("username")
		loginReq.Password = r.PostForm.Get("password")
	}

	loginReq.Username = strings.TrimSpace(loginReq.Username)
	return &loginReq, nil
}
