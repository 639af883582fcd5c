package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS allows the configured origins to call the API from a browser.
// An empty list or "*" allows any origin.
func CORS(origins []string) fiber.Handler {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return cors.New(cors.Config{
		AllowOrigins:  strings.Join(allowed, ","),
		AllowMethods:  "GET,POST,DELETE,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, " + RequestIDHeader,
		ExposeHeaders: "Content-Length, Content-Type, " + RequestIDHeader,
		MaxAge:        86400,
	})
}
