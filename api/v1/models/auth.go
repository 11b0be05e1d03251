package models

// LoginRequest represents the OAuth2 password form; Username carries the email
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Token represents the response after successful authentication
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Message struct {
	Message string `json:"message"`
}
