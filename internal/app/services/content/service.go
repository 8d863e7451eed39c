// Package content implements the versioned content service: cache-backed page
// reads and compare-and-swap saves over the content store.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/driveline/platform/internal/app/domain/content"
	"github.com/driveline/platform/internal/app/storage"
	"github.com/driveline/platform/internal/apperr"
	"github.com/driveline/platform/internal/cache"
	"github.com/driveline/platform/pkg/logger"
)

// DefaultPageTTL bounds how stale a cached page listing may get.
const DefaultPageTTL = 5 * time.Minute

// Config holds the content service settings.
type Config struct {
	PageTTL time.Duration
}

// DefaultConfig returns the default content service configuration.
func DefaultConfig() Config {
	return Config{PageTTL: DefaultPageTTL}
}

// Service is the versioned content store exposed to route handlers. All
// content writes flow through Save so that conflict detection and cache
// invalidation have a single choke point.
type Service struct {
	store  storage.ContentStore
	cache  cache.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// New creates the content service.
func New(store storage.ContentStore, c cache.Cache, cfg Config, log *logger.Logger) *Service {
	if cfg.PageTTL <= 0 {
		cfg.PageTTL = DefaultPageTTL
	}
	if log == nil {
		log = logger.NewDefault("content")
	}
	return &Service{store: store, cache: c, ttl: cfg.PageTTL, logger: log}
}

// SaveRequest is one attempted content write. ExpectedVersion nil means the
// editor did not assert a prior version; zero means the editor expects the
// item not to exist yet.
type SaveRequest struct {
	Page            string          `json:"page"`
	Key             string          `json:"key"`
	Type            content.Type    `json:"type"`
	Value           json.RawMessage `json:"value"`
	EditorID        string          `json:"editor_id"`
	ExpectedVersion *int            `json:"expected_version,omitempty"`
}

// SaveResult reports the outcome of a save. Conflict is a terminal answer for
// the submitted version, not an error: the editor must re-load and resubmit.
type SaveResult struct {
	Success  bool `json:"success"`
	Version  int  `json:"version,omitempty"`
	Conflict bool `json:"conflict,omitempty"`
}

// Load returns every item on a page keyed by item key, reading through the
// cache.
func (s *Service) Load(ctx context.Context, page string) (map[string]content.Item, error) {
	if page == "" {
		return nil, apperr.Validation("page is required")
	}

	pageKey := cache.ContentPageKey(page)
	if raw, ok := s.cacheGet(ctx, pageKey); ok {
		var items map[string]content.Item
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
		// A corrupt entry is dropped and the backend re-read.
		s.cacheDel(ctx, pageKey)
	}

	list, err := s.store.ListContentItems(ctx, page)
	if err != nil {
		return nil, err
	}
	items := make(map[string]content.Item, len(list))
	for _, item := range list {
		items[item.Key] = item
	}
	s.cacheSet(ctx, pageKey, items)
	return items, nil
}

// Save validates and commits one content write with the version guard.
//
// The current version is read cache-first; the write itself is conditioned on
// that version at the backend, so a racing editor in this or any other
// process loses cleanly with Conflict instead of silently overwriting.
func (s *Service) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if req.Page == "" || req.Key == "" {
		return SaveResult{}, apperr.Validation("page and key are required")
	}
	if err := content.ValidateType(req.Type); err != nil {
		return SaveResult{}, apperr.Validation("%v", err)
	}
	if err := content.ValidateValue(req.Type, req.Value); err != nil {
		return SaveResult{}, apperr.Validation("%v", err)
	}

	current, exists, err := s.currentItem(ctx, req.Page, req.Key)
	if err != nil {
		return SaveResult{}, err
	}

	if req.ExpectedVersion != nil {
		expected := *req.ExpectedVersion
		if (!exists && expected != 0) || (exists && expected != current.Version) {
			return SaveResult{Conflict: true}, nil
		}
	}

	item := content.Item{
		Page:      req.Page,
		Key:       req.Key,
		Type:      req.Type,
		Value:     req.Value,
		UpdatedBy: req.EditorID,
	}

	var written content.Item
	if exists {
		written, err = s.store.UpdateContentItemVersioned(ctx, item, current.Version)
	} else {
		written, err = s.store.InsertContentItem(ctx, item)
	}
	if errors.Is(err, storage.ErrVersionConflict) {
		// The guard failed between our read and the backend commit.
		return SaveResult{Conflict: true}, nil
	}
	if err != nil {
		return SaveResult{}, err
	}

	// Invalidate only after the backend write committed.
	s.cacheDel(ctx, cache.ContentItemKey(req.Page, req.Key), cache.ContentPageKey(req.Page))

	s.logger.WithFields(map[string]interface{}{
		"page":    req.Page,
		"key":     req.Key,
		"version": written.Version,
		"editor":  req.EditorID,
	}).Info("content saved")

	return SaveResult{Success: true, Version: written.Version}, nil
}

// currentItem resolves the stored item cache-first. A miss everywhere means
// "no existing item", which is the version-1 insert path, not an error.
func (s *Service) currentItem(ctx context.Context, page, key string) (content.Item, bool, error) {
	itemKey := cache.ContentItemKey(page, key)
	if raw, ok := s.cacheGet(ctx, itemKey); ok {
		var item content.Item
		if err := json.Unmarshal(raw, &item); err == nil {
			return item, true, nil
		}
		s.cacheDel(ctx, itemKey)
	}

	item, err := s.store.GetContentItem(ctx, page, key)
	if errors.Is(err, storage.ErrNotFound) {
		return content.Item{}, false, nil
	}
	if err != nil {
		return content.Item{}, false, err
	}
	s.cacheSet(ctx, itemKey, item)
	return item, true, nil
}

// Cache helpers. The cache is an optimization: its failures are logged and
// the caller proceeds against the backend.

func (s *Service) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("cache read failed")
		return nil, false
	}
	return raw, ok
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("cache write failed")
	}
}

func (s *Service) cacheDel(ctx context.Context, keys ...string) {
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.WithError(err).Warn("cache invalidation failed")
	}
}
