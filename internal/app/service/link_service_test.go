package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sifan077/MiniLink/internal/app/model"
	"github.com/sifan077/MiniLink/internal/app/repository"
)

type mockLinkRepository struct {
	createFn      func(ctx context.Context, link *model.Link) error
	getFn         func(ctx context.Context, codeOrAlias string) (*model.Link, error)
	getByAliasFn  func(ctx context.Context, alias string) (*model.Link, error)
	listFn        func(ctx context.Context) ([]model.Link, error)
	recordClickFn func(ctx context.Context, codeOrAlias string, at time.Time) (*model.Link, error)
	deleteFn      func(ctx context.Context, codeOrAlias string) error
	pingFn        func(ctx context.Context) error
}

func (m *mockLinkRepository) Create(ctx context.Context, link *model.Link) error {
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepository) GetByCodeOrAlias(ctx context.Context, codeOrAlias string) (*model.Link, error) {
	if m.getFn != nil {
		return m.getFn(ctx, codeOrAlias)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) GetByAlias(ctx context.Context, alias string) (*model.Link, error) {
	if m.getByAliasFn != nil {
		return m.getByAliasFn(ctx, alias)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) List(ctx context.Context) ([]model.Link, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockLinkRepository) RecordClick(ctx context.Context, codeOrAlias string, at time.Time) (*model.Link, error) {
	if m.recordClickFn != nil {
		return m.recordClickFn(ctx, codeOrAlias, at)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) Delete(ctx context.Context, codeOrAlias string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, codeOrAlias)
	}
	return nil
}

func (m *mockLinkRepository) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type stubQR struct {
	err error
}

func (q stubQR) Encode(content string) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	return "qr:" + content, nil
}

type recordingPublisher struct {
	events []model.LinkEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.LinkEvent) error {
	p.events = append(p.events, event)
	return p.err
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo repository.LinkRepository, events EventPublisher) LinkService {
	return NewLinkService(repo, Options{
		BaseURL:    "http://short.test/",
		BatchLimit: 3,
		QR:         stubQR{},
		Events:     events,
		Now:        func() time.Time { return fixedNow },
	})
}

func strPtr(s string) *string { return &s }

func TestLinkService_CreateLink(t *testing.T) {
	var stored *model.Link
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			stored = link
			return nil
		},
	}
	events := &recordingPublisher{}

	svc := newTestService(repo, events)
	created, err := svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com/page"})
	if err != nil {
		t.Fatalf("CreateLink returned error: %v", err)
	}

	code := Fingerprint("https://example.com/page")
	if stored == nil || stored.ShortCode != code {
		t.Fatalf("expected stored code %s, got %+v", code, stored)
	}
	if stored.ClickCount != 0 || !stored.CreatedAt.Equal(fixedNow) || !stored.LastAccessed.Equal(fixedNow) {
		t.Fatalf("unexpected initial state: %+v", stored)
	}
	if stored.CustomAlias != nil || stored.ExpirationDate != nil {
		t.Fatalf("expected no alias or expiration: %+v", stored)
	}
	if created.ShortURL != "http://short.test/"+code {
		t.Fatalf("unexpected short url %s", created.ShortURL)
	}
	if created.QRCode != "qr:"+created.ShortURL {
		t.Fatalf("expected qr of short url, got %s", created.QRCode)
	}
	if len(events.events) != 1 || events.events[0].Type != model.LinkCreated {
		t.Fatalf("expected one created event, got %+v", events.events)
	}
}

func TestLinkService_CreateLink_SameURLConflicts(t *testing.T) {
	links := map[string]*model.Link{}
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, code string) (*model.Link, error) {
			if l, ok := links[code]; ok {
				return l, nil
			}
			return nil, repository.ErrLinkNotFound
		},
		createFn: func(ctx context.Context, link *model.Link) error {
			links[link.ShortCode] = link
			return nil
		},
	}
	svc := newTestService(repo, nil)

	first, err := svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com"})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err = svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com"})
	if !errors.Is(err, ErrCodeConflict) {
		t.Fatalf("expected ErrCodeConflict, got %v", err)
	}
	if len(links) != 1 || links[first.Link.ShortCode] != first.Link {
		t.Fatalf("expected the first record to survive, got %+v", links)
	}
}

func TestLinkService_CreateLink_AliasTaken(t *testing.T) {
	created := 0
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, code string) (*model.Link, error) {
			return &model.Link{ShortCode: code, CustomAlias: strPtr(code)}, nil
		},
		createFn: func(ctx context.Context, link *model.Link) error {
			created++
			return nil
		},
	}
	svc := newTestService(repo, nil)

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		LongURL:     "https://example.com",
		CustomAlias: strPtr("promo"),
	})
	if !errors.Is(err, ErrAliasTaken) {
		t.Fatalf("expected ErrAliasTaken, got %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no write, got %d", created)
	}
}

func TestLinkService_CreateLink_InsertRaceMapsToCollision(t *testing.T) {
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			return repository.ErrDuplicateLink
		},
	}
	svc := newTestService(repo, nil)

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com", CustomAlias: strPtr("promo")})
	if !errors.Is(err, ErrAliasTaken) {
		t.Fatalf("expected ErrAliasTaken, got %v", err)
	}

	_, err = svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com"})
	if !errors.Is(err, ErrCodeConflict) {
		t.Fatalf("expected ErrCodeConflict, got %v", err)
	}
}

func TestLinkService_CreateLink_Validation(t *testing.T) {
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			t.Fatalf("unexpected write for %+v", link)
			return nil
		},
	}
	svc := newTestService(repo, nil)

	cases := []struct {
		name  string
		input CreateLinkInput
		want  error
	}{
		{"not a url", CreateLinkInput{LongURL: "not a url"}, ErrInvalidURL},
		{"empty url", CreateLinkInput{LongURL: ""}, ErrInvalidURL},
		{"bad scheme", CreateLinkInput{LongURL: "javascript://alert(1)"}, ErrInvalidURL},
		{"empty alias", CreateLinkInput{LongURL: "https://example.com", CustomAlias: strPtr("")}, ErrInvalidAlias},
		{"alias with slash", CreateLinkInput{LongURL: "https://example.com", CustomAlias: strPtr("a/b")}, ErrInvalidAlias},
		{"reserved alias", CreateLinkInput{LongURL: "https://example.com", CustomAlias: strPtr("analytics")}, ErrInvalidAlias},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateLink(context.Background(), tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLinkService_CreateLink_QRFailureLeavesNoRecord(t *testing.T) {
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			t.Fatal("link must not be stored when the QR code fails")
			return nil
		},
	}
	svc := NewLinkService(repo, Options{QR: stubQR{err: errors.New("boom")}})

	if _, err := svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLinkService_CreateLink_StoreError(t *testing.T) {
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			return errors.New("connection reset")
		},
	}
	svc := newTestService(repo, nil)

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com"})
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestLinkService_CreateLink_PublishFailureIgnored(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, &recordingPublisher{err: errors.New("nats down")})

	if _, err := svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com"}); err != nil {
		t.Fatalf("publish failure must not fail creation: %v", err)
	}
}

func TestLinkService_CreateLinksBatch(t *testing.T) {
	var stored []*model.Link
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			stored = append(stored, link)
			return nil
		},
	}
	svc := newTestService(repo, nil)

	result, err := svc.CreateLinksBatch(context.Background(), []BatchItem{
		{LongURL: "not a url"},
		{LongURL: "https://ok.com", CustomAlias: strPtr("x"), Validity: ValidityDays(2)},
	})
	if err != nil {
		t.Fatalf("CreateLinksBatch error: %v", err)
	}
	if len(result.Failures) != 1 || len(result.Successes) != 1 {
		t.Fatalf("expected one success and one failure, got %+v", result)
	}
	if !strings.Contains(result.Failures[0].Err.Error(), "not a url") {
		t.Fatalf("failure should name the input url: %v", result.Failures[0].Err)
	}
	if result.Failures[0].OriginalURL != "not a url" {
		t.Fatalf("unexpected original url %q", result.Failures[0].OriginalURL)
	}

	link := result.Successes[0].Link
	if link.ShortCode != "x" || link.Alias() != "x" {
		t.Fatalf("expected alias code, got %+v", link)
	}
	want := fixedNow.Add(48 * time.Hour)
	if link.ExpirationDate == nil || !link.ExpirationDate.Equal(want) {
		t.Fatalf("expected expiration %v, got %v", want, link.ExpirationDate)
	}
	if len(stored) != 1 {
		t.Fatalf("expected one stored link, got %d", len(stored))
	}
}

func TestLinkService_CreateLinksBatch_InvalidValidity(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, nil)

	var bad Validity
	if err := bad.UnmarshalJSON([]byte(`"soon"`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	result, err := svc.CreateLinksBatch(context.Background(), []BatchItem{
		{LongURL: "https://a.example.com", Validity: bad},
		{LongURL: "https://b.example.com", Validity: ValidityDays(0)},
		{LongURL: "https://c.example.com"},
	})
	if err != nil {
		t.Fatalf("CreateLinksBatch error: %v", err)
	}
	if len(result.Failures) != 2 || len(result.Successes) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, f := range result.Failures {
		if !errors.Is(f.Err, ErrInvalidExpiration) {
			t.Fatalf("expected ErrInvalidExpiration, got %v", f.Err)
		}
	}
	if result.Successes[0].Link.ExpirationDate != nil {
		t.Fatal("missing validity must mean no expiration")
	}
}

func TestLinkService_CreateLinksBatch_LongValidity(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, nil)

	result, err := svc.CreateLinksBatch(context.Background(), []BatchItem{
		{LongURL: "https://a.example.com", CustomAlias: strPtr("century"), Validity: ValidityDays(MaxValidityDays)},
		{LongURL: "https://b.example.com", CustomAlias: strPtr("ovf"), Validity: ValidityDays(200000)},
	})
	if err != nil {
		t.Fatalf("CreateLinksBatch error: %v", err)
	}
	if len(result.Successes) != 1 || len(result.Failures) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	exp := result.Successes[0].Link.ExpirationDate
	want := fixedNow.AddDate(0, 0, MaxValidityDays)
	if exp == nil || !exp.Equal(want) {
		t.Fatalf("expected expiration %v, got %v", want, exp)
	}
	if !exp.After(fixedNow) {
		t.Fatalf("expiration %v must lie in the future", exp)
	}

	if !errors.Is(result.Failures[0].Err, ErrInvalidExpiration) {
		t.Fatalf("expected ErrInvalidExpiration, got %v", result.Failures[0].Err)
	}
	if result.Failures[0].OriginalURL != "https://b.example.com" {
		t.Fatalf("unexpected failed url %q", result.Failures[0].OriginalURL)
	}
}

func TestLinkService_CreateLinksBatch_Limits(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, nil)

	if _, err := svc.CreateLinksBatch(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}

	items := make([]BatchItem, 4)
	if _, err := svc.CreateLinksBatch(context.Background(), items); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestLinkService_ResolveAndRedirect(t *testing.T) {
	var clickedAt time.Time
	repo := &mockLinkRepository{
		recordClickFn: func(ctx context.Context, code string, at time.Time) (*model.Link, error) {
			clickedAt = at
			switch code {
			case "abc123":
				return &model.Link{ShortCode: code, LongURL: "https://example.com", ClickCount: 1, LastAccessed: at}, nil
			case "old":
				return nil, repository.ErrLinkExpired
			case "broken":
				return nil, errors.New("timeout")
			}
			return nil, repository.ErrLinkNotFound
		},
	}
	events := &recordingPublisher{}
	svc := newTestService(repo, events)

	target, err := svc.ResolveAndRedirect(context.Background(), "abc123")
	if err != nil || target != "https://example.com" {
		t.Fatalf("expected redirect target, got %q, %v", target, err)
	}
	if !clickedAt.Equal(fixedNow) {
		t.Fatalf("expected click at %v, got %v", fixedNow, clickedAt)
	}
	if len(events.events) != 1 || events.events[0].Type != model.LinkClicked || events.events[0].ClickCount != 1 {
		t.Fatalf("unexpected events %+v", events.events)
	}

	if _, err := svc.ResolveAndRedirect(context.Background(), "old"); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}
	if _, err := svc.ResolveAndRedirect(context.Background(), "missing"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
	if _, err := svc.ResolveAndRedirect(context.Background(), "broken"); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if len(events.events) != 1 {
		t.Fatalf("failed redirects must not publish, got %+v", events.events)
	}
}

func TestLinkService_GetAnalytics(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, code string) (*model.Link, error) {
			if code != "promo" {
				return nil, repository.ErrLinkNotFound
			}
			return &model.Link{
				ShortCode:      "promo",
				CustomAlias:    strPtr("promo"),
				LongURL:        "https://example.com",
				ClickCount:     7,
				ExpirationDate: &past,
			}, nil
		},
	}
	svc := newTestService(repo, nil)

	summary, err := svc.GetAnalytics(context.Background(), "promo")
	if err != nil {
		t.Fatalf("GetAnalytics error: %v", err)
	}
	if summary.ClickCount != 7 || !summary.IsExpired || summary.ShortURL != "http://short.test/promo" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if _, err := svc.GetAnalytics(context.Background(), "nope"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestLinkService_ListLinks(t *testing.T) {
	repo := &mockLinkRepository{
		listFn: func(ctx context.Context) ([]model.Link, error) {
			return []model.Link{{ShortCode: "a"}, {ShortCode: "b"}}, nil
		},
	}
	svc := newTestService(repo, nil)

	list, err := svc.ListLinks(context.Background())
	if err != nil {
		t.Fatalf("ListLinks error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 links, got %d", len(list))
	}

	empty, err := newTestService(&mockLinkRepository{}, nil).ListLinks(context.Background())
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v, %v", empty, err)
	}
}

func TestLinkService_FindByAlias(t *testing.T) {
	repo := &mockLinkRepository{
		getByAliasFn: func(ctx context.Context, alias string) (*model.Link, error) {
			if alias == "promo" {
				return &model.Link{ShortCode: "promo", CustomAlias: strPtr("promo")}, nil
			}
			return nil, repository.ErrLinkNotFound
		},
	}
	svc := newTestService(repo, nil)

	link, err := svc.FindByAlias(context.Background(), "promo")
	if err != nil || link.ShortCode != "promo" {
		t.Fatalf("expected promo, got %+v, %v", link, err)
	}
	if _, err := svc.FindByAlias(context.Background(), "other"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestLinkService_DeleteLink(t *testing.T) {
	deleted := map[string]bool{}
	repo := &mockLinkRepository{
		deleteFn: func(ctx context.Context, code string) error {
			if code != "abc" || deleted[code] {
				return repository.ErrLinkNotFound
			}
			deleted[code] = true
			return nil
		},
	}
	events := &recordingPublisher{}
	svc := newTestService(repo, events)

	if err := svc.DeleteLink(context.Background(), "abc"); err != nil {
		t.Fatalf("DeleteLink error: %v", err)
	}
	if err := svc.DeleteLink(context.Background(), "abc"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound on repeat, got %v", err)
	}
	if len(events.events) != 1 || events.events[0].Type != model.LinkDeleted {
		t.Fatalf("unexpected events %+v", events.events)
	}
}

func TestLinkService_Ping(t *testing.T) {
	svc := newTestService(&mockLinkRepository{
		pingFn: func(ctx context.Context) error { return errors.New("down") },
	}, nil)

	if err := svc.Ping(context.Background()); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}
