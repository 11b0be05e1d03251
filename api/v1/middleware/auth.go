package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GHutch55/fastzero/api/v1/database"
	"github.com/GHutch55/fastzero/api/v1/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type contextKey string

const UserContextKey contextKey = "user"

const (
	tokenIssuer          = "fastzero-api"
	credentialsErrorText = "Could not validate credentials"
)

// UserLookup loads the user a token refers to
type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	Users     UserLookup
	JWTSecret string
	TokenTTL  time.Duration
	Log       logrus.FieldLogger
}

// Claims represents JWT token claims; the subject is the user ID
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(users UserLookup, jwtSecret string, tokenTTL time.Duration, log logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{
		Users:     users,
		JWTSecret: jwtSecret,
		TokenTTL:  tokenTTL,
		Log:       log,
	}
}

// GenerateToken creates a new JWT token for the given user
func (am *AuthMiddleware) GenerateToken(user *models.User) (string, error) {
	if user == nil {
		return "", errors.New("user cannot be nil")
	}

	now := time.Now()
	claims := &Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(am.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(user.ID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(am.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a JWT token string and returns its claims and the user ID it names
func (am *AuthMiddleware) ValidateToken(tokenString string) (*Claims, int64, error) {
	if tokenString == "" {
		return nil, 0, errors.New("token string cannot be empty")
	}

	claims := &Claims{}

	// Add leeway for clock skew
	parser := jwt.NewParser(
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(am.JWTSecret), nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, 0, errors.New("token is not valid")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, 0, errors.New("invalid user ID in token")
	}

	return claims, userID, nil
}

// RequireAuth validates the bearer token and loads the user into the request context
func (am *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			am.sendUnauthorized(w)
			return
		}

		claims, userID, err := am.ValidateToken(tokenString)
		if err != nil {
			am.Log.WithError(err).Debug("rejected bearer token")
			am.sendUnauthorized(w)
			return
		}

		user, err := am.Users.GetUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, database.ErrUserNotFound) {
				am.sendUnauthorized(w)
				return
			}
			am.Log.WithError(err).WithField("user_id", userID).Error("failed to load token user")
			am.sendError(w, "Unable to verify user", http.StatusInternalServerError)
			return
		}

		// Token is stale once the email it was issued for changed
		if user.Email != claims.Email {
			am.sendUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserFromContext retrieves the authenticated user from the request context
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}

// GetUserIDFromContext is a helper to quickly get just the user ID
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	if user, ok := GetUserFromContext(ctx); ok {
		return user.ID, true
	}
	return 0, false
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	fields := strings.Fields(authHeader)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	return fields[1], true
}

func (am *AuthMiddleware) sendUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	am.sendError(w, credentialsErrorText, http.StatusUnauthorized)
}

// sendError sends a JSON error response
func (am *AuthMiddleware) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		am.Log.WithError(err).Error("failed to encode error response")
	}
}
