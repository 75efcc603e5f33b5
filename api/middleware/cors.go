package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000", // local dev
}

// CORS returns middleware allowing the storefront origin plus local dev.
func CORS(frontURL string) func(http.Handler) http.Handler {
	origins := defaultCORSOrigins
	if front := strings.TrimRight(strings.TrimSpace(frontURL), "/"); front != "" {
		origins = append([]string{front}, origins...)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
