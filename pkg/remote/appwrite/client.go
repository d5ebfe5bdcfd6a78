// Package appwrite implements remote.Client over the Appwrite databases REST
// API.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/schemaprov/pkg/catalog"
	"github.com/openfroyo/schemaprov/pkg/remote"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

var validate = validator.New()

// Config holds the credentials and endpoint of one Appwrite project.
type Config struct {
	// Endpoint is the API base URL including the version, e.g.
	// "https://cloud.appwrite.io/v1".
	Endpoint string `validate:"required,url"`

	// ProjectID is sent as X-Appwrite-Project.
	ProjectID string `validate:"required"`

	// APIKey is sent as X-Appwrite-Key.
	APIKey string `validate:"required"`

	// Timeout bounds each HTTP request. Zero means 30 seconds.
	Timeout time.Duration `validate:"gte=0"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Timeout in Config is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client talks to one Appwrite project.
type Client struct {
	endpoint  string
	projectID string
	apiKey    string
	userAgent string
	http      *http.Client
}

var (
	_ remote.Client                = (*Client)(nil)
	_ remote.AttributeStatusReader = (*Client)(nil)
)

// New validates cfg and creates a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid appwrite config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		projectID: cfg.ProjectID,
		apiKey:    cfg.APIKey,
		userAgent: "schemaprov",
		http:      &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// errorBody is the error payload Appwrite returns.
type errorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

// do sends one request. A non-2xx response becomes a *remote.Error; 409
// additionally wraps remote.ErrConflict.
func (c *Client) do(ctx context.Context, method, path, op, resource string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Appwrite-Project", c.projectID)
	req.Header.Set("X-Appwrite-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return &remote.Error{
			Message:  err.Error(),
			Op:       op,
			Resource: resource,
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp, op, resource)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func decodeError(resp *http.Response, op, resource string) error {
	rerr := &remote.Error{
		Code:     resp.StatusCode,
		Message:  resp.Status,
		Op:       op,
		Resource: resource,
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	if len(data) > 0 && json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			rerr.Message = body.Message
		}
		rerr.Type = body.Type
	}

	if resp.StatusCode == http.StatusConflict {
		rerr.Err = remote.ErrConflict
	}
	return rerr
}

func collectionPath(databaseID, collectionID string) string {
	return "/databases/" + url.PathEscape(databaseID) + "/collections/" + url.PathEscape(collectionID)
}

// CreateDatabase implements remote.Client.
func (c *Client) CreateDatabase(ctx context.Context, req remote.DatabaseRequest) error {
	body := map[string]interface{}{
		"databaseId": req.DatabaseID,
		"name":       req.Name,
	}
	return c.do(ctx, http.MethodPost, "/databases", remote.OpCreateDatabase, req.Resource(), body, nil)
}

// CreateCollection implements remote.Client.
func (c *Client) CreateCollection(ctx context.Context, req remote.CollectionRequest) error {
	permissions := req.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	body := map[string]interface{}{
		"collectionId":     req.CollectionID,
		"name":             req.Name,
		"permissions":      permissions,
		"documentSecurity": req.DocumentSecurity,
	}
	path := "/databases/" + url.PathEscape(req.DatabaseID) + "/collections"
	return c.do(ctx, http.MethodPost, path, remote.OpCreateCollection, req.Resource(), body, nil)
}

// CreateAttribute implements remote.Client. Each attribute type has its own
// endpoint and payload.
func (c *Client) CreateAttribute(ctx context.Context, req remote.AttributeRequest) error {
	segment, body, err := attributePayload(req.Attribute)
	if err != nil {
		return err
	}
	path := collectionPath(req.DatabaseID, req.CollectionID) + "/attributes/" + segment
	return c.do(ctx, http.MethodPost, path, remote.OpCreateAttribute, req.Resource(), body, nil)
}

func attributePayload(a catalog.Attribute) (string, map[string]interface{}, error) {
	meta := a.Meta()
	body := map[string]interface{}{
		"key":      meta.Key,
		"required": meta.Required,
		"array":    meta.Array,
	}
	if v, ok := a.DefaultValue(); ok {
		body["default"] = v
	}

	switch v := a.(type) {
	case catalog.StringAttribute:
		body["size"] = v.Size
	case catalog.IntegerAttribute:
		if v.Min != nil {
			body["min"] = *v.Min
		}
		if v.Max != nil {
			body["max"] = *v.Max
		}
	case catalog.FloatAttribute:
		if v.Min != nil {
			body["min"] = *v.Min
		}
		if v.Max != nil {
			body["max"] = *v.Max
		}
	case catalog.BooleanAttribute, catalog.DatetimeAttribute,
		catalog.EmailAttribute, catalog.URLAttribute:
	default:
		return "", nil, fmt.Errorf("unsupported attribute variant %T", a)
	}

	return string(a.Type()), body, nil
}

// CreateIndex implements remote.Client.
func (c *Client) CreateIndex(ctx context.Context, req remote.IndexRequest) error {
	body := map[string]interface{}{
		"key":        req.Index.Key,
		"type":       string(req.Index.Type),
		"attributes": req.Index.Attributes,
	}
	if len(req.Index.Orders) > 0 {
		body["orders"] = req.Index.Orders
	}
	path := collectionPath(req.DatabaseID, req.CollectionID) + "/indexes"
	return c.do(ctx, http.MethodPost, path, remote.OpCreateIndex, req.Resource(), body, nil)
}

// CreateDocument implements remote.Client.
func (c *Client) CreateDocument(ctx context.Context, req remote.DocumentRequest) error {
	body := map[string]interface{}{
		"documentId": req.DocumentID,
		"data":       req.Data,
	}
	if req.Permissions != nil {
		body["permissions"] = req.Permissions
	}
	path := collectionPath(req.DatabaseID, req.CollectionID) + "/documents"
	return c.do(ctx, http.MethodPost, path, remote.OpCreateDocument, req.Resource(), body, nil)
}

// AttributeStatus implements remote.AttributeStatusReader.
func (c *Client) AttributeStatus(ctx context.Context, databaseID, collectionID, key string) (remote.AttributeStatus, error) {
	var out struct {
		Status string `json:"status"`
	}
	path := collectionPath(databaseID, collectionID) + "/attributes/" + url.PathEscape(key)
	if err := c.do(ctx, http.MethodGet, path, remote.OpAttributeStatus, collectionID+"."+key, nil, &out); err != nil {
		return "", err
	}
	return remote.AttributeStatus(out.Status), nil
}
