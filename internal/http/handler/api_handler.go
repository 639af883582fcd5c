package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/MiniLink/internal/app/model"
	"github.com/sifan077/MiniLink/internal/app/service"
	"go.uber.org/zap"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
}

// APIHandler implements link creation, analytics and the management API.
type APIHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:      logger,
		linkService: deps.LinkService,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	router.Post("/shorten", h.Shorten)
	router.Post("/batch-shorten", h.BatchShorten)
	router.Get("/analytics/:shortCode", h.Analytics)

	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Get("/", h.ListLinks)
			links.Get("/:id", h.GetByAlias)
			links.Delete("/:id", h.DeleteLink)
		}
	}
}

// ShortenRequest is the body of POST /shorten.
type ShortenRequest struct {
	OriginalURL    string  `json:"originalUrl" validate:"required"`
	CustomAlias    *string `json:"customAlias,omitempty"`
	ExpirationDate *string `json:"expirationDate,omitempty"`
}

// ShortenResponse describes one created link.
type ShortenResponse struct {
	OriginalURL    string     `json:"originalUrl"`
	ShortURL       string     `json:"shortUrl"`
	ShortCode      string     `json:"shortCode"`
	QRCode         string     `json:"qrCode"`
	ExpirationDate *time.Time `json:"expirationDate"`
}

// BatchShortenRequest is the body of POST /batch-shorten.
type BatchShortenRequest struct {
	URLs []BatchURL `json:"urls"`
}

// BatchURL is one entry of a batch request. Validity is in days.
type BatchURL struct {
	OriginalURL string           `json:"originalUrl"`
	CustomAlias *string          `json:"customAlias,omitempty"`
	Validity    service.Validity `json:"validity"`
}

// BatchError reports a batch entry that was not shortened.
type BatchError struct {
	OriginalURL string `json:"originalUrl"`
	Error       string `json:"error"`
}

// BatchShortenResponse lists results in input order.
type BatchShortenResponse struct {
	ShortenedURLs []ShortenResponse `json:"shortenedUrls"`
	Errors        []BatchError      `json:"errors"`
}

// Shorten handles POST /shorten
func (h *APIHandler) Shorten(c *fiber.Ctx) error {
	var req ShortenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := requestValidator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "originalUrl is required",
		})
	}

	input := service.CreateLinkInput{
		LongURL:     req.OriginalURL,
		CustomAlias: optionalAlias(req.CustomAlias),
	}
	if req.ExpirationDate != nil {
		exp, err := service.ParseExpirationDate(*req.ExpirationDate)
		if err != nil {
			return h.writeServiceError(c, err)
		}
		input.ExpirationDate = exp
	}

	created, err := h.linkService.CreateLink(requestContext(c), input)
	if err != nil {
		return h.writeServiceError(c, err)
	}

	return c.JSON(toShortenResponse(*created))
}

// BatchShorten handles POST /batch-shorten
func (h *APIHandler) BatchShorten(c *fiber.Ctx) error {
	var req BatchShortenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	items := make([]service.BatchItem, len(req.URLs))
	for i, u := range req.URLs {
		items[i] = service.BatchItem{
			LongURL:     u.OriginalURL,
			CustomAlias: optionalAlias(u.CustomAlias),
			Validity:    u.Validity,
		}
	}

	result, err := h.linkService.CreateLinksBatch(requestContext(c), items)
	if err != nil {
		return h.writeServiceError(c, err)
	}

	resp := BatchShortenResponse{
		ShortenedURLs: make([]ShortenResponse, len(result.Successes)),
		Errors:        make([]BatchError, len(result.Failures)),
	}
	for i, created := range result.Successes {
		resp.ShortenedURLs[i] = toShortenResponse(created)
	}
	for i, failure := range result.Failures {
		resp.Errors[i] = BatchError{
			OriginalURL: failure.OriginalURL,
			Error:       failure.Err.Error(),
		}
		if errors.Is(failure.Err, service.ErrStore) {
			h.logger.Error("batch item failed", zap.String("url", failure.OriginalURL), zap.Error(failure.Err))
		}
	}

	return c.JSON(resp)
}

// Analytics handles GET /analytics/:shortCode
func (h *APIHandler) Analytics(c *fiber.Ctx) error {
	summary, err := h.linkService.GetAnalytics(requestContext(c), c.Params("shortCode"))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(summary)
}

// ListLinks handles GET /api/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	links, err := h.linkService.ListLinks(requestContext(c))
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "failed to list links",
		})
	}
	if len(links) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "no links found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"links":   links,
	})
}

// GetByAlias handles GET /api/links/:id where id is a custom alias.
func (h *APIHandler) GetByAlias(c *fiber.Ctx) error {
	alias := c.Params("id")
	link, err := h.linkService.FindByAlias(requestContext(c), alias)
	if err != nil {
		return h.writeManagementError(c, err, alias)
	}

	return c.JSON(struct {
		Success bool        `json:"success"`
		Link    *model.Link `json:"link"`
	}{Success: true, Link: link})
}

// DeleteLink handles DELETE /api/links/:id where id is a short code or alias.
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	code := c.Params("id")
	if err := h.linkService.DeleteLink(requestContext(c), code); err != nil {
		return h.writeManagementError(c, err, code)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "link deleted",
	})
}

func (h *APIHandler) writeManagementError(c *fiber.Ctx, err error, id string) error {
	if errors.Is(err, service.ErrLinkNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "link not found",
		})
	}
	h.logger.Error("link management request failed", zap.String("id", id), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "internal server error",
	})
}

// writeServiceError maps service sentinels onto HTTP status codes.
func (h *APIHandler) writeServiceError(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	if status == fiber.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidURL),
		errors.Is(err, service.ErrInvalidAlias),
		errors.Is(err, service.ErrInvalidExpiration),
		errors.Is(err, service.ErrAliasTaken),
		errors.Is(err, service.ErrEmptyBatch),
		errors.Is(err, service.ErrBatchTooLarge):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrCodeConflict):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrLinkNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrLinkExpired):
		return fiber.StatusGone
	default:
		return fiber.StatusInternalServerError
	}
}

func toShortenResponse(created service.CreatedLink) ShortenResponse {
	return ShortenResponse{
		OriginalURL:    created.Link.LongURL,
		ShortURL:       created.ShortURL,
		ShortCode:      created.Link.ShortCode,
		QRCode:         created.QRCode,
		ExpirationDate: created.Link.ExpirationDate,
	}
}

// optionalAlias treats an empty alias as "not supplied".
func optionalAlias(alias *string) *string {
	if alias == nil || *alias == "" {
		return nil
	}
	return alias
}

func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
