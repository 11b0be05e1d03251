package handlers

import (
	"net/http"
)

func ApiInfoHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"name":    "fastzero API",
		"version": "0.1.0",
		"endpoints": map[string]string{
			"users":         "/users/",
			"token":         "/token",
			"refresh_token": "/auth/refresh_token",
			"health":        "/health",
			"metrics":       "/metrics",
		},
	}
	SendJSON(w, response, http.StatusOK)
}
