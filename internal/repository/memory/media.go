package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"account_orchestrator/internal/domain"
)

// MediaRepository is an in-memory implementation of MediaRepository
type MediaRepository struct {
	mu    sync.RWMutex
	media map[string]*domain.Media
}

// NewMediaRepository creates a new in-memory media repository
func NewMediaRepository() *MediaRepository {
	return &MediaRepository{media: make(map[string]*domain.Media)}
}

// GetByIDs returns the known media among ids, in the order of ids
func (r *MediaRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Media
	for _, id := range ids {
		if m, ok := r.media[id]; ok {
			clone := *m
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Save creates or updates a media row
func (r *MediaRepository) Save(ctx context.Context, media *domain.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if media.ID == "" {
		media.ID = uuid.NewString()
	}
	if media.CreatedAt.IsZero() {
		media.CreatedAt = time.Now()
	}
	clone := *media
	r.media[media.ID] = &clone
	return nil
}

// ProxyRepository is an in-memory implementation of ProxyRepository
type ProxyRepository struct {
	mu      sync.RWMutex
	proxies map[string]string
}

// NewProxyRepository creates a new in-memory proxy repository
func NewProxyRepository() *ProxyRepository {
	return &ProxyRepository{proxies: make(map[string]string)}
}

func (r *ProxyRepository) ProxyFor(ctx context.Context, accountID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.proxies[accountID], nil
}

func (r *ProxyRepository) Assign(ctx context.Context, accountID, proxyURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies[accountID] = proxyURL
	return nil
}

func (r *ProxyRepository) Unassign(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.proxies, accountID)
	return nil
}
