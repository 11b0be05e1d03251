package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/GHutch55/fastzero/api/v1/database"
	"github.com/GHutch55/fastzero/api/v1/middleware"
	"github.com/GHutch55/fastzero/api/v1/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultListLimit = 100
	maxListLimit     = 100
)

// UserStore is the persistence the user and auth handlers need
type UserStore interface {
	CreateUser(ctx context.Context, user *database.UserWithPassword) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*database.UserWithPassword, error)
	GetUsers(ctx context.Context, skip, limit int) ([]models.User, error)
	UpdateUser(ctx context.Context, userID int64, user *database.UserWithPassword) error
	DeleteUser(ctx context.Context, userID int64) error
}

// UserHandler holds the user store
type UserHandler struct {
	Users    UserStore
	Validate *validator.Validate
	Log      logrus.FieldLogger
	HashCost int
}

func NewUserHandler(users UserStore, validate *validator.Validate, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{
		Users:    users,
		Validate: validate,
		Log:      log,
		HashCost: bcrypt.DefaultCost,
	}
}

// CreateUser registers a new account
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	schema, ok := h.decodeUserSchema(w, r)
	if !ok {
		return
	}

	user, ok := h.withHashedPassword(w, schema)
	if !ok {
		return
	}

	if err := h.Users.CreateUser(r.Context(), user); err != nil {
		h.sendStoreError(w, err)
		return
	}

	SendJSON(w, user.Public(), http.StatusCreated)
}

// GetUsers lists users using skip/limit offsets
func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	skip := 0
	if skipStr := query.Get("skip"); skipStr != "" {
		if s, err := strconv.Atoi(skipStr); err == nil && s >= 0 {
			skip = s
		}
	}

	limit := defaultListLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxListLimit {
			limit = l
		}
	}

	users, err := h.Users.GetUsers(r.Context(), skip, limit)
	if err != nil {
		h.sendStoreError(w, err)
		return
	}

	response := models.UserList{Users: make([]models.UserPublic, 0, len(users))}
	for i := range users {
		response.Users = append(response.Users, users[i].Public())
	}

	SendJSON(w, response, http.StatusOK)
}

// GetUser retrieves a single user by ID
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.Users.GetUser(r.Context(), userID)
	if err != nil {
		h.sendStoreError(w, err)
		return
	}

	SendJSON(w, user.Public(), http.StatusOK)
}

// UpdateUser replaces the authenticated user's own record
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownedUserID(w, r)
	if !ok {
		return
	}

	schema, ok := h.decodeUserSchema(w, r)
	if !ok {
		return
	}

	user, ok := h.withHashedPassword(w, schema)
	if !ok {
		return
	}

	if err := h.Users.UpdateUser(r.Context(), userID, user); err != nil {
		h.sendStoreError(w, err)
		return
	}

	SendJSON(w, user.Public(), http.StatusOK)
}

// DeleteUser removes the authenticated user's own record
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownedUserID(w, r)
	if !ok {
		return
	}

	if err := h.Users.DeleteUser(r.Context(), userID); err != nil {
		h.sendStoreError(w, err)
		return
	}

	SendJSON(w, models.Message{Message: "User deleted"}, http.StatusOK)
}

// ownedUserID parses the path ID and checks it names the caller. A mismatch is
// forbidden whether or not the target exists.
func (h *UserHandler) ownedUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	currentID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		SendError(w, "Authentication required", http.StatusUnauthorized)
		return 0, false
	}

	userID, ok := userIDParam(w, r)
	if !ok {
		return 0, false
	}

	if userID != currentID {
		SendError(w, "Not enough permissions", http.StatusForbidden)
		return 0, false
	}

	return userID, true
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	userID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || userID <= 0 {
		SendError(w, "Invalid user ID", http.StatusBadRequest)
		return 0, false
	}
	return userID, true
}

func (h *UserHandler) decodeUserSchema(w http.ResponseWriter, r *http.Request) (*models.UserSchema, bool) {
	var schema models.UserSchema
	if err := json.NewDecoder(r.Body).Decode(&schema); err != nil {
		SendError(w, "Invalid JSON format", http.StatusBadRequest)
		return nil, false
	}

	schema.Username = strings.TrimSpace(schema.Username)
	schema.Email = strings.TrimSpace(schema.Email)

	if err := h.Validate.Struct(&schema); err != nil {
		if fields, ok := validationFields(err); ok {
			SendValidationError(w, fields)
			return nil, false
		}
		h.Log.WithError(err).Error("failed to validate user payload")
		SendError(w, "An unexpected error occurred", http.StatusInternalServerError)
		return nil, false
	}

	return &schema, true
}

func (h *UserHandler) withHashedPassword(w http.ResponseWriter, schema *models.UserSchema) (*database.UserWithPassword, bool) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(schema.Password), h.HashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			SendValidationError(w, map[string]string{"password": "password must be at most 72 bytes long"})
			return nil, false
		}
		h.Log.WithError(err).Error("failed to hash password")
		SendError(w, "Unable to process password", http.StatusInternalServerError)
		return nil, false
	}

	return &database.UserWithPassword{
		User: models.User{
			Username: schema.Username,
			Email:    schema.Email,
		},
		Password: string(hashedPassword),
	}, true
}

func (h *UserHandler) sendStoreError(w http.ResponseWriter, err error) {
	switch {
	case database.IsUserNotFoundError(err):
		SendError(w, "User not found", http.StatusNotFound)
	case database.IsUsernameExistsError(err) || database.IsEmailExistsError(err):
		SendError(w, conflictMessage(err), http.StatusConflict)
	case errors.Is(err, database.ErrDatabaseError):
		SendError(w, "Unable to process request at this time", http.StatusInternalServerError)
	default:
		h.Log.WithError(err).Error("unexpected store error")
		SendError(w, "An unexpected error occurred", http.StatusInternalServerError)
	}
}

func conflictMessage(err error) string {
	usernameTaken := database.IsUsernameExistsError(err)
	emailTaken := database.IsEmailExistsError(err)

	switch {
	case usernameTaken && emailTaken:
		return "Username and email already exist"
	case usernameTaken:
		return "Username already exists"
	default:
		return "Email already exists"
	}
}
