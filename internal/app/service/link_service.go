package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/MiniLink/internal/app/model"
	"github.com/sifan077/MiniLink/internal/app/repository"
	"go.uber.org/zap"
)

const defaultBatchLimit = 100

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*CreatedLink, error)
	CreateLinksBatch(ctx context.Context, items []BatchItem) (*BatchResult, error)
	ResolveAndRedirect(ctx context.Context, codeOrAlias string) (string, error)
	GetAnalytics(ctx context.Context, codeOrAlias string) (*LinkAnalytics, error)
	ListLinks(ctx context.Context) ([]model.Link, error)
	FindByAlias(ctx context.Context, alias string) (*model.Link, error)
	DeleteLink(ctx context.Context, codeOrAlias string) error
	ShortURL(code string) string
	Ping(ctx context.Context) error
}

// Options configures a LinkService. Zero values fall back to working defaults.
type Options struct {
	BaseURL    string
	BatchLimit int
	QR         QREncoder
	Events     EventPublisher
	Logger     *zap.Logger
	Now        func() time.Time
}

type linkService struct {
	repo       repository.LinkRepository
	baseURL    string
	batchLimit int
	qr         QREncoder
	events     EventPublisher
	log        *zap.Logger
	now        func() time.Time
}

// NewLinkService returns a service implementation backed by the given repository.
func NewLinkService(repo repository.LinkRepository, opts Options) LinkService {
	s := &linkService{
		repo:       repo,
		baseURL:    opts.BaseURL,
		batchLimit: opts.BatchLimit,
		qr:         opts.QR,
		events:     opts.Events,
		log:        opts.Logger,
		now:        opts.Now,
	}
	if s.batchLimit <= 0 {
		s.batchLimit = defaultBatchLimit
	}
	if s.qr == nil {
		s.qr = NewPNGQREncoder(defaultQRSize)
	}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateLinkInput captures data required to create a link.
type CreateLinkInput struct {
	LongURL        string
	CustomAlias    *string
	ExpirationDate *time.Time
}

// CreatedLink is a stored link together with its presentation forms.
type CreatedLink struct {
	Link     *model.Link
	ShortURL string
	QRCode   string
}

// BatchItem is one entry of a batch request. Validity is measured in days.
type BatchItem struct {
	LongURL     string
	CustomAlias *string
	Validity    Validity
}

// BatchFailure records why a batch entry was not created.
type BatchFailure struct {
	OriginalURL string
	Err         error
}

// BatchResult lists created links and failures, each in input order.
type BatchResult struct {
	Successes []CreatedLink
	Failures  []BatchFailure
}

// LinkAnalytics is the read-only summary returned for a link.
type LinkAnalytics struct {
	ShortCode      string     `json:"shortCode"`
	CustomAlias    *string    `json:"customAlias"`
	LongURL        string     `json:"longUrl"`
	ShortURL       string     `json:"shortUrl"`
	ClickCount     int64      `json:"clickCount"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastAccessed   time.Time  `json:"lastAccessed"`
	ExpirationDate *time.Time `json:"expirationDate"`
	IsExpired      bool       `json:"isExpired"`
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*CreatedLink, error) {
	created, err := s.createLink(ctx, input)
	if err != nil {
		linkCreateFailuresTotal.WithLabelValues(sourceSingle).Inc()
		return nil, err
	}
	linksCreatedTotal.WithLabelValues(sourceSingle).Inc()
	return created, nil
}

func (s *linkService) createLink(ctx context.Context, input CreateLinkInput) (*CreatedLink, error) {
	if err := ValidateLongURL(input.LongURL); err != nil {
		return nil, err
	}

	code := Fingerprint(input.LongURL)
	hasAlias := input.CustomAlias != nil
	if hasAlias {
		if err := ValidateAlias(*input.CustomAlias); err != nil {
			return nil, err
		}
		code = *input.CustomAlias
	}

	existing, err := s.repo.GetByCodeOrAlias(ctx, code)
	switch {
	case err == nil && existing != nil:
		return nil, collisionError(hasAlias, code)
	case err != nil && !errors.Is(err, repository.ErrLinkNotFound):
		return nil, storeError("check short code", err)
	}

	shortURL := s.ShortURL(code)
	qr, err := s.qr.Encode(shortURL)
	if err != nil {
		return nil, fmt.Errorf("create link %s: %w", code, err)
	}

	now := s.timestamp()
	link := &model.Link{
		ShortCode:      code,
		LongURL:        input.LongURL,
		CreatedAt:      now,
		LastAccessed:   now,
		ExpirationDate: normalizeTime(input.ExpirationDate),
	}
	if hasAlias {
		alias := *input.CustomAlias
		link.CustomAlias = &alias
	}

	if err := s.repo.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicateLink) {
			return nil, collisionError(hasAlias, code)
		}
		return nil, storeError("create link", err)
	}

	s.log.Info("link created",
		zap.String("short_code", link.ShortCode),
		zap.Bool("custom_alias", hasAlias),
		zap.Bool("expires", link.ExpirationDate != nil),
	)
	s.publish(ctx, model.LinkEvent{
		Type:      model.LinkCreated,
		ShortCode: link.ShortCode,
		LongURL:   link.LongURL,
		Timestamp: now,
	})

	return &CreatedLink{Link: link, ShortURL: shortURL, QRCode: qr}, nil
}

func (s *linkService) CreateLinksBatch(ctx context.Context, items []BatchItem) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(items) > s.batchLimit {
		return nil, fmt.Errorf("%w: %d urls submitted, limit is %d", ErrBatchTooLarge, len(items), s.batchLimit)
	}

	result := &BatchResult{
		Successes: make([]CreatedLink, 0, len(items)),
		Failures:  make([]BatchFailure, 0),
	}

	for _, item := range items {
		created, err := s.createBatchItem(ctx, item)
		if err != nil {
			linkCreateFailuresTotal.WithLabelValues(sourceBatch).Inc()
			result.Failures = append(result.Failures, BatchFailure{
				OriginalURL: item.LongURL,
				Err:         fmt.Errorf("failed to shorten %s: %w", item.LongURL, err),
			})
			continue
		}
		linksCreatedTotal.WithLabelValues(sourceBatch).Inc()
		result.Successes = append(result.Successes, *created)
	}

	s.log.Info("batch processed",
		zap.Int("submitted", len(items)),
		zap.Int("created", len(result.Successes)),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

func (s *linkService) createBatchItem(ctx context.Context, item BatchItem) (*CreatedLink, error) {
	days, err := item.Validity.Days()
	if err != nil {
		return nil, err
	}

	input := CreateLinkInput{LongURL: item.LongURL, CustomAlias: item.CustomAlias}
	if days != nil {
		exp := s.now().UTC().AddDate(0, 0, *days)
		input.ExpirationDate = &exp
	}
	return s.createLink(ctx, input)
}

func (s *linkService) ResolveAndRedirect(ctx context.Context, codeOrAlias string) (string, error) {
	link, err := s.repo.RecordClick(ctx, codeOrAlias, s.timestamp())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLinkNotFound):
			redirectsTotal.WithLabelValues(outcomeNotFound).Inc()
			return "", ErrLinkNotFound
		case errors.Is(err, repository.ErrLinkExpired):
			redirectsTotal.WithLabelValues(outcomeExpired).Inc()
			return "", ErrLinkExpired
		default:
			redirectsTotal.WithLabelValues(outcomeError).Inc()
			return "", storeError("record click", err)
		}
	}

	redirectsTotal.WithLabelValues(outcomeRedirected).Inc()
	s.publish(ctx, model.LinkEvent{
		Type:       model.LinkClicked,
		ShortCode:  link.ShortCode,
		ClickCount: link.ClickCount,
		Timestamp:  link.LastAccessed,
	})
	return link.LongURL, nil
}

func (s *linkService) GetAnalytics(ctx context.Context, codeOrAlias string) (*LinkAnalytics, error) {
	link, err := s.lookup(ctx, "get analytics", func() (*model.Link, error) {
		return s.repo.GetByCodeOrAlias(ctx, codeOrAlias)
	})
	if err != nil {
		return nil, err
	}

	return &LinkAnalytics{
		ShortCode:      link.ShortCode,
		CustomAlias:    link.CustomAlias,
		LongURL:        link.LongURL,
		ShortURL:       s.ShortURL(link.ShortCode),
		ClickCount:     link.ClickCount,
		CreatedAt:      link.CreatedAt,
		LastAccessed:   link.LastAccessed,
		ExpirationDate: link.ExpirationDate,
		IsExpired:      link.IsExpired(s.now()),
	}, nil
}

func (s *linkService) ListLinks(ctx context.Context) ([]model.Link, error) {
	links, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeError("list links", err)
	}
	if links == nil {
		links = make([]model.Link, 0)
	}
	return links, nil
}

func (s *linkService) FindByAlias(ctx context.Context, alias string) (*model.Link, error) {
	return s.lookup(ctx, "find by alias", func() (*model.Link, error) {
		return s.repo.GetByAlias(ctx, alias)
	})
}

func (s *linkService) DeleteLink(ctx context.Context, codeOrAlias string) error {
	if err := s.repo.Delete(ctx, codeOrAlias); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrLinkNotFound
		}
		return storeError("delete link", err)
	}

	linksDeletedTotal.Inc()
	s.log.Info("link deleted", zap.String("code", codeOrAlias))
	s.publish(ctx, model.LinkEvent{
		Type:      model.LinkDeleted,
		ShortCode: codeOrAlias,
		Timestamp: s.timestamp(),
	})
	return nil
}

// ShortURL renders the public URL for code.
func (s *linkService) ShortURL(code string) string {
	return BuildShortURL(s.baseURL, code)
}

func (s *linkService) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (s *linkService) lookup(ctx context.Context, op string, find func() (*model.Link, error)) (*model.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	link, err := find()
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, storeError(op, err)
	}
	return link, nil
}

func (s *linkService) publish(ctx context.Context, event model.LinkEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		eventPublishFailuresTotal.WithLabelValues(string(event.Type)).Inc()
		s.log.Warn("failed to publish link event",
			zap.String("type", string(event.Type)),
			zap.String("short_code", event.ShortCode),
			zap.Error(err),
		)
	}
}

// timestamp is the service clock at the precision every store keeps.
func (s *linkService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Millisecond)
	return &v
}

func collisionError(hasAlias bool, code string) error {
	if hasAlias {
		return fmt.Errorf("%w: %s", ErrAliasTaken, code)
	}
	return fmt.Errorf("%w: %s was already shortened", ErrCodeConflict, code)
}
