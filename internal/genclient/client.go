package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrRateLimited marks the transient too-many-requests failure class that
// the retry controller is allowed to retry. Every other error is terminal.
var ErrRateLimited = errors.New("rate limited")

// ErrNotAuthenticated is returned before any network call when the client
// has no session token.
var ErrNotAuthenticated = errors.New("authentication failed, sign in again")

// Client talks to the ProdStack API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 600 * time.Second,
		},
	}
}

// SetToken installs the bearer credential used for authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Workspace mirrors the API's workspace resource.
type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Persona mirrors the API's persona resource.
type Persona struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Canvas mirrors the API's problem canvas resource.
type Canvas struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Document mirrors the API's generated document resource.
type Document struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	DocumentType string `json:"documentType"`
	CreatedAt    string `json:"createdAt"`
}

type errorEnvelope struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// SignIn authenticates and installs the returned session token on the client.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/signin", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return mapStatusError(resp)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode signin response: %w", err)
	}
	c.token = payload.Token
	return nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	if c.token == "" {
		return ErrNotAuthenticated
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return mapStatusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ListWorkspaces returns the caller's workspaces.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	var payload struct {
		Workspaces []Workspace `json:"workspaces"`
	}
	if err := c.get(ctx, "/api/workspaces", &payload); err != nil {
		return nil, err
	}
	return payload.Workspaces, nil
}

// ListPersonas returns the personas of a workspace.
func (c *Client) ListPersonas(ctx context.Context, workspaceID string) ([]Persona, error) {
	var payload struct {
		Personas []Persona `json:"personas"`
	}
	if err := c.get(ctx, "/api/workspaces/"+workspaceID+"/personas", &payload); err != nil {
		return nil, err
	}
	return payload.Personas, nil
}

// ListCanvases returns the problem canvases of a workspace.
func (c *Client) ListCanvases(ctx context.Context, workspaceID string) ([]Canvas, error) {
	var payload struct {
		Canvases []Canvas `json:"canvases"`
	}
	if err := c.get(ctx, "/api/workspaces/"+workspaceID+"/canvases", &payload); err != nil {
		return nil, err
	}
	return payload.Canvases, nil
}

// ListDocuments returns the generated documents of a workspace.
func (c *Client) ListDocuments(ctx context.Context, workspaceID string) ([]Document, error) {
	var payload struct {
		Documents []Document `json:"documents"`
	}
	if err := c.get(ctx, "/api/workspaces/"+workspaceID+"/documents", &payload); err != nil {
		return nil, err
	}
	return payload.Documents, nil
}

type generateBody struct {
	WorkspaceID      string   `json:"workspaceId"`
	DocumentType     string   `json:"documentType"`
	SelectedPersonas []string `json:"selectedPersonas"`
	SelectedCanvas   *string  `json:"selectedCanvas"`
}

// GenerateDocument runs one generation attempt. When onChunk is non-nil the
// streaming endpoint is used and each delta is delivered through the
// callback as it arrives; otherwise the single-shot endpoint is used. The
// request is validated against the catalog before anything goes on the
// wire. Returns the full accumulated text.
func (c *Client) GenerateDocument(ctx context.Context, req Request, catalog Catalog, onChunk func(string)) (string, error) {
	if c.token == "" {
		return "", ErrNotAuthenticated
	}
	if err := Validate(req, catalog); err != nil {
		return "", err
	}

	body := generateBody{
		WorkspaceID:      req.WorkspaceID,
		DocumentType:     req.DocumentType,
		SelectedPersonas: req.SelectedPersonaIDs,
	}
	if body.SelectedPersonas == nil {
		body.SelectedPersonas = []string{}
	}
	if req.SelectedCanvasID != "" {
		canvas := req.SelectedCanvasID
		body.SelectedCanvas = &canvas
	}

	if onChunk != nil {
		return c.generateStreaming(ctx, body, onChunk)
	}
	return c.generateSingleShot(ctx, body)
}

func (c *Client) postGenerate(ctx context.Context, path string, body generateBody, accept string) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, mapStatusError(resp)
	}
	return resp, nil
}

func (c *Client) generateStreaming(ctx context.Context, body generateBody, onChunk func(string)) (string, error) {
	resp, err := c.postGenerate(ctx, "/api/documents/generate", body, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var total strings.Builder
	decoder := NewStreamDecoder(resp.Body)
	for {
		delta, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total.String(), err
		}
		total.WriteString(delta)
		onChunk(delta)
	}

	if total.Len() == 0 {
		return "", errors.New("No content received from AI service")
	}
	return total.String(), nil
}

func (c *Client) generateSingleShot(ctx context.Context, body generateBody) (string, error) {
	resp, err := c.postGenerate(ctx, "/api/documents/generate/sync", body, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload struct {
		Success  bool      `json:"success"`
		Document *Document `json:"document"`
		Error    string    `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if !payload.Success || payload.Document == nil {
		if payload.Error != "" {
			return "", errors.New(payload.Error)
		}
		return "", errors.New("generation failed")
	}
	if payload.Document.Content == "" {
		return "", errors.New("No content received from AI service")
	}
	return payload.Document.Content, nil
}

// mapStatusError translates an HTTP failure into the semantic error the
// orchestrator understands. The body is drained so connections are reused.
func mapStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	var envelope errorEnvelope
	_ = json.Unmarshal(raw, &envelope)

	if resp.StatusCode == http.StatusTooManyRequests || envelope.Code == "RATE_LIMIT" {
		return ErrRateLimited
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.New("requested data not found")
	case http.StatusUnauthorized:
		return ErrNotAuthenticated
	case http.StatusPaymentRequired:
		if envelope.Error != "" {
			return errors.New(envelope.Error)
		}
		return errors.New("AI usage limit reached")
	case http.StatusBadRequest:
		if envelope.Error != "" {
			return errors.New(envelope.Error)
		}
		return errors.New("invalid request data")
	case http.StatusServiceUnavailable:
		return errors.New("AI service temporarily unavailable")
	default:
		if envelope.Error != "" {
			return errors.New(envelope.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}
}
