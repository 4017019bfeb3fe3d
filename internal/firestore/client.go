package firestore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/taskscope/envchat/pkg/logger"
	"github.com/taskscope/envchat/pkg/metrics"
)

const (
	defaultBaseURL = "https://firestore.googleapis.com/v1"
	datastoreScope = "https://www.googleapis.com/auth/datastore"
)

// Config holds the settings needed to reach the document store.
type Config struct {
	ProjectID       string
	CredentialsJSON string
	CacheTTL        time.Duration

	// AllowUnconfigured tolerates missing credentials at construction time.
	// The client stays unusable until real credentials are supplied; this
	// exists only for configuration-check runs.
	AllowUnconfigured bool
}

// Client reads and writes individual documents over the Firestore REST API.
// It holds no per-request state and is safe for concurrent use; one instance
// is shared across all requests together with its cache.
type Client struct {
	projectID  string
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	cache      *Cache
	logger     *logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, primarily for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource overrides credential exchange with a fixed token source.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// NewClient builds a store client from service-account credentials. Missing
// credentials are fatal here rather than on first call, unless
// cfg.AllowUnconfigured is set. Token refresh and caching are handled by the
// oauth2 token source.
func NewClient(ctx context.Context, cfg Config, log *logger.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		projectID:  cfg.ProjectID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      NewCache(cfg.CacheTTL),
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tokens == nil {
		if cfg.CredentialsJSON == "" {
			if cfg.AllowUnconfigured {
				return c, nil
			}
			return nil, &CredentialError{Reason: "missing GOOGLE_FIREBASE_CREDENTIALS_JSON"}
		}
		creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.CredentialsJSON), datastoreScope)
		if err != nil {
			return nil, &CredentialError{Reason: "invalid credentials", Err: err}
		}
		c.tokens = creds.TokenSource
	}
	return c, nil
}

// Configured reports whether the client can authenticate calls.
func (c *Client) Configured() bool {
	return c.tokens != nil
}

// Cache exposes the document cache, shared with everything reading through
// this client.
func (c *Client) Cache() *Cache {
	return c.cache
}

// GetDocument fetches the document at path and returns its decoded fields.
// With useCache set, an unexpired cache entry short-circuits the read and a
// fresh read populates the cache. A 2xx response without a fields member is a
// ShapeError.
func (c *Client) GetDocument(ctx context.Context, path string, useCache bool) (map[string]any, error) {
	if useCache {
		if cached, ok := c.cache.Get(path); ok {
			metrics.RecordCacheLookup(true)
			if doc, ok := cached.(map[string]any); ok {
				return doc, nil
			}
		}
		metrics.RecordCacheLookup(false)
	}

	body, err := c.do(ctx, http.MethodGet, c.documentURL(path), nil)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Fields map[string]Value `json:"fields"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ShapeError{Path: path, Reason: "response is not a document: " + err.Error()}
	}
	if doc.Fields == nil {
		return nil, &ShapeError{Path: path, Reason: "document has no fields"}
	}

	data := DecodeFields(doc.Fields)
	if useCache {
		c.cache.Set(path, data)
	}
	return data, nil
}

// SetDocumentMerge writes fields to the document at path with merge
// semantics: only the listed top-level fields are replaced. A successful
// write invalidates any cache entry for the path.
func (c *Client) SetDocumentMerge(ctx context.Context, path string, fields map[string]any) error {
	encoded := EncodeFields(fields)

	payload, err := json.Marshal(struct {
		Fields map[string]Value `json:"fields"`
	}{Fields: encoded})
	if err != nil {
		return err
	}

	u := c.documentURL(path)
	mask := url.Values{}
	for key := range encoded {
		mask.Add("updateMask.fieldPaths", key)
	}
	if len(mask) > 0 {
		u += "?" + mask.Encode()
	}

	if _, err := c.do(ctx, http.MethodPatch, u, payload); err != nil {
		return err
	}
	c.cache.Delete(path)
	return nil
}

func (c *Client) documentURL(path string) string {
	return c.baseURL + "/projects/" + c.projectID + "/databases/(default)/documents/" + path
}

func (c *Client) do(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	if c.tokens == nil {
		return nil, &CredentialError{Reason: "client constructed without credentials"}
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, &CredentialError{Reason: "token exchange failed", Err: err}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordStoreRequest(method, "error", time.Since(start).Seconds())
		return nil, &StoreError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StoreError{Status: resp.StatusCode, Body: err.Error()}
	}

	metrics.RecordStoreRequest(method, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StoreError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
