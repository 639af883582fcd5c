package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/MiniLink/internal/app/service"
	"github.com/sifan077/MiniLink/internal/http/view"
	"go.uber.org/zap"
)

const (
	serviceName        = "MiniLink"
	healthCheckTimeout = 2 * time.Second
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
}

// RedirectHandler serves short-link redirects and the health endpoints.
type RedirectHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:      logger,
		linkService: deps.LinkService,
	}
}

// Register wires redirect routes onto the provided router. The catch-all
// /:shortCode route must be registered after every fixed route.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:shortCode", h.Resolve)
}

// Health reports whether the service and its store are reachable.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(requestContext(c), healthCheckTimeout)
	defer cancel()

	status, store, code := "ok", "ok", fiber.StatusOK
	if err := h.linkService.Ping(ctx); err != nil {
		h.logger.Warn("store health check failed", zap.Error(err))
		status, store, code = "degraded", "unreachable", fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"service": serviceName,
		"status":  status,
		"store":   store,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:shortCode and issues a 302 to the long URL.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("shortCode")

	target, err := h.linkService.ResolveAndRedirect(requestContext(c), code)
	if err != nil {
		return h.renderFailure(c, code, err)
	}

	h.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", target))
	return c.Redirect(target, fiber.StatusFound)
}

func (h *RedirectHandler) renderFailure(c *fiber.Ctx, code string, err error) error {
	status := statusForError(err)

	var message string
	switch {
	case errors.Is(err, service.ErrLinkNotFound):
		message = "short link not found"
	case errors.Is(err, service.ErrLinkExpired):
		message = "this link has expired"
	default:
		h.logger.Error("failed to resolve short link", zap.String("code", code), zap.Error(err))
		message = "error handling the redirect"
	}

	if !prefersHTML(c) {
		return c.Status(status).JSON(fiber.Map{
			"error": message,
		})
	}

	html, renderErr := view.RenderStatusPage(view.StatusPageData{
		StatusCode: status,
		Code:       code,
		Message:    message,
	})
	if renderErr != nil {
		h.logger.Error("failed to render status page", zap.Error(renderErr))
		return c.Status(status).JSON(fiber.Map{
			"error": message,
		})
	}

	return c.Status(status).
		Type("html", "utf-8").
		SendString(html)
}

// prefersHTML is true for browsers; API clients and bare requests get JSON.
func prefersHTML(c *fiber.Ctx) bool {
	if c.Get(fiber.HeaderAccept) == "" {
		return false
	}
	return c.Accepts(fiber.MIMEApplicationJSON, fiber.MIMETextHTML) == fiber.MIMETextHTML
}
