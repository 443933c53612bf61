package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"regexp"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

type LinkService struct {
	repo      ports.LinkRepository
	providers ports.ProviderSet
	clock     ports.Clock
}

func NewLinkService(repo ports.LinkRepository, providers ports.ProviderSet, clock ports.Clock) *LinkService {
	return &LinkService{repo: repo, providers: providers, clock: clock}
}

func (s *LinkService) CreateLink(ctx context.Context, ownerID, slug, targetURL, title, flow string) (*domain.ProtectedLink, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if u, err := url.Parse(targetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: target_url must be an absolute http(s) URL", domain.ErrInvalidInput)
	}
	switch flow {
	case "":
		flow = domain.FlowStandard
	case domain.FlowStandard, domain.FlowQuick:
	default:
		return nil, fmt.Errorf("%w: unknown flow %q", domain.ErrInvalidInput, flow)
	}

	usable, err := s.hasUsableCredential(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !usable {
		return nil, domain.ErrCredentialsRequired
	}

	if slug == "" {
		slug, err = s.freeSlug(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		if !slugPattern.MatchString(slug) {
			return nil, fmt.Errorf("%w: slug must be 3-64 letters, digits, '-' or '_'", domain.ErrInvalidInput)
		}
		existing, err := s.repo.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("slug %s: %w", slug, domain.ErrConflict)
		}
	}

	now := s.clock.Now()
	link := &domain.ProtectedLink{
		Slug:      slug,
		OwnerID:   ownerID,
		TargetURL: targetURL,
		Title:     title,
		Flow:      flow,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *LinkService) hasUsableCredential(ctx context.Context, ownerID string) (bool, error) {
	creds, err := s.repo.ListCredentials(ctx, ownerID)
	if err != nil {
		return false, err
	}
	for _, c := range creds {
		if _, ok := s.providers.Get(c.Provider); ok && c.APIKey != "" {
			return true, nil
		}
	}
	return false, nil
}

func (s *LinkService) freeSlug(ctx context.Context) (string, error) {
	for i := 0; i < 3; i++ {
		code, err := generateShortCode(6)
		if err != nil {
			return "", err
		}
		existing, err := s.repo.GetBySlug(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a free slug: %w", domain.ErrConflict)
}

func (s *LinkService) ListLinks(ctx context.Context, ownerID string, page, limit int) ([]domain.ProtectedLink, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	links, err := s.repo.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	return links, count, nil
}

func (s *LinkService) GetLinkStats(ctx context.Context, ownerID string, id int64) (*domain.LinkStats, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link == nil || link.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetLinkStats(ctx, id)
}

func (s *LinkService) SetCredential(ctx context.Context, ownerID, provider, apiKey string) error {
	if ownerID == "" {
		return domain.ErrUnauthenticated
	}
	if _, ok := s.providers.Get(provider); !ok {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, provider)
	}
	if apiKey == "" {
		return fmt.Errorf("%w: api_key is required", domain.ErrInvalidInput)
	}
	return s.repo.UpsertCredential(ctx, &domain.ProviderCredential{
		OwnerID:   ownerID,
		Provider:  provider,
		APIKey:    apiKey,
		CreatedAt: s.clock.Now(),
	})
}

func (s *LinkService) ListCredentials(ctx context.Context, ownerID string) ([]domain.ProviderCredential, error) {
	creds, err := s.repo.ListCredentials(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProviderCredential, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.Masked())
	}
	return out, nil
}

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateShortCode(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}
