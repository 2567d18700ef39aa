package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the local dev frontends (Streamlit on 8501, the usual
// Vite/React ports) to talk to the API. The pipeline identifier headers
// are exposed so browser clients can pick up the ids for audit lookups.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
			"http://localhost:8501",
			"http://127.0.0.1:80",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
			"http://127.0.0.1:8501",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With", "X-Session-Id", "X-Trace-Id"},
		ExposeHeaders:    []string{"X-Request-Id", "X-Session-Id", "X-Trace-Id"},
		AllowCredentials: true,
	})
}
