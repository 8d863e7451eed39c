// Package supabase implements the content store against the Supabase REST
// API (PostgREST). The version guard is expressed as a filtered PATCH, so the
// conditional write is atomic on the backend even when several processes
// share the project.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/driveline/platform/internal/app/domain/content"
	"github.com/driveline/platform/internal/app/storage"
	"github.com/driveline/platform/internal/apperr"
)

// Config holds Supabase connection settings.
type Config struct {
	URL        string
	ServiceKey string
	HTTPClient *http.Client
}

// Store implements storage.ContentStore over the Supabase REST API.
type Store struct {
	url        string
	serviceKey string
	httpClient *http.Client
}

var _ storage.ContentStore = (*Store)(nil)

const (
	contentTable      = "content_items"
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// New creates a Supabase-backed content store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase service key is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: client,
	}, nil
}

// request makes an HTTP request to the Supabase REST API and returns the
// representation body. Status codes >= 400 surface to the caller so write
// paths can map 409 to a conflict.
func (s *Store) request(ctx context.Context, method string, body interface{}, query string) ([]byte, int, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", s.url, contentTable)
	if query != "" {
		url += "?" + query
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, apperr.Unavailable("supabase request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return respBody, resp.StatusCode, nil
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, apperr.Unavailable("read supabase response", err)
	}
	return respBody, resp.StatusCode, nil
}

func eq(value string) string { return "eq." + neturl.QueryEscape(value) }

func (s *Store) GetContentItem(ctx context.Context, page, key string) (content.Item, error) {
	query := fmt.Sprintf("page=%s&key=%s&limit=1", eq(page), eq(key))
	body, status, err := s.request(ctx, http.MethodGet, nil, query)
	if err != nil {
		return content.Item{}, err
	}
	if status >= 400 {
		return content.Item{}, supabaseError("get content item", status, body)
	}

	var items []content.Item
	if err := json.Unmarshal(body, &items); err != nil {
		return content.Item{}, apperr.Unavailable("decode content item", err)
	}
	if len(items) == 0 {
		return content.Item{}, storage.ErrNotFound
	}
	return items[0], nil
}

func (s *Store) ListContentItems(ctx context.Context, page string) ([]content.Item, error) {
	query := fmt.Sprintf("page=%s&order=key.asc", eq(page))
	body, status, err := s.request(ctx, http.MethodGet, nil, query)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, supabaseError("list content items", status, body)
	}

	var items []content.Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, apperr.Unavailable("decode content items", err)
	}
	return items, nil
}

func (s *Store) InsertContentItem(ctx context.Context, item content.Item) (content.Item, error) {
	item.Version = 1
	item.UpdatedAt = time.Now().UTC()

	body, status, err := s.request(ctx, http.MethodPost, item, "")
	if err != nil {
		return content.Item{}, err
	}
	if status == http.StatusConflict {
		// The unique (page, key) constraint fired: version 1 already exists.
		return content.Item{}, storage.ErrVersionConflict
	}
	if status >= 400 {
		return content.Item{}, supabaseError("insert content item", status, body)
	}

	var items []content.Item
	if err := json.Unmarshal(body, &items); err != nil || len(items) == 0 {
		return item, nil
	}
	return items[0], nil
}

func (s *Store) UpdateContentItemVersioned(ctx context.Context, item content.Item, expectedVersion int) (content.Item, error) {
	item.Version = expectedVersion + 1
	item.UpdatedAt = time.Now().UTC()

	query := fmt.Sprintf("page=%s&key=%s&version=eq.%d", eq(item.Page), eq(item.Key), expectedVersion)
	body, status, err := s.request(ctx, http.MethodPatch, item, query)
	if err != nil {
		return content.Item{}, err
	}
	if status >= 400 {
		return content.Item{}, supabaseError("update content item", status, body)
	}

	var items []content.Item
	if err := json.Unmarshal(body, &items); err != nil {
		return content.Item{}, apperr.Unavailable("decode updated item", err)
	}
	if len(items) == 0 {
		// The version filter matched nothing: the guard failed.
		return content.Item{}, storage.ErrVersionConflict
	}
	return items[0], nil
}

func supabaseError(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	err := fmt.Errorf("supabase API error %d: %s", status, msg)
	if status >= 500 || status == http.StatusTooManyRequests {
		return apperr.Unavailable(op, err)
	}
	return apperr.Unknown(op, err)
}
