package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/MiniLink/internal/app/service"
	inthttp "github.com/sifan077/MiniLink/internal/http/handler"
	"github.com/sifan077/MiniLink/internal/http/middleware"
	"github.com/sifan077/MiniLink/internal/infra/logger"
	"go.uber.org/zap"
)

// Dependencies bundles what the HTTP server needs to serve requests.
type Dependencies struct {
	Logger      *zap.Logger
	Links       service.LinkService
	CORSOrigins []string
	// Metrics enables the Prometheus request middleware.
	Metrics bool
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with all routes registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.L()
	}

	// Short codes are matched on their decoded path form.
	app := fiber.New(fiber.Config{
		AppName:               "MiniLink",
		DisableStartupMessage: true,
		UnescapePath:          true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	if s.deps.Metrics {
		s.app.Use(middleware.Metrics())
	}
	s.app.Use(middleware.CORS(s.deps.CORSOrigins))
}

func (s *Server) registerRoutes() {
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.Links,
	})
	apiHandler.Register(s.app)

	// Registered last: GET /:shortCode would otherwise shadow /health.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.Links,
	})
	redirectHandler.Register(s.app)
}

// errorHandler keeps framework errors (unknown routes, bad methods) in the
// same JSON shape as handler errors.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
