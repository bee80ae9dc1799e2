// Package console implements the admin chat console: the session directory,
// the message log, the reply composer and the notification transport.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

// DefaultRequestTimeout bounds every remote call the console makes.
const DefaultRequestTimeout = 10 * time.Second

// API is the chat REST surface the console depends on.
type API interface {
	ListSessions(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error)
	ClaimSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	CloseSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	ArchiveSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	GetHistory(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}

// APIClient is an HTTP client for the chat admin API.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPIClient creates a new API client.
func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &APIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do sends a request and decodes a JSON response into out.
func (c *APIClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeFetchFailed, "chat server unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.CodeFetchFailed, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorBody
		if json.Unmarshal(respBody, &errResp) != nil || errResp.Error == "" {
			errResp.Error = fmt.Sprintf("chat server returned %d", resp.StatusCode)
		}
		return apperr.FromStatus(resp.StatusCode, errResp.Code, errResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.Wrap(apperr.CodeFetchFailed, "failed to decode response", err)
	}
	return nil
}

// ListSessions calls GET /admin/chat/sessions.
func (c *APIClient) ListSessions(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/admin/chat/sessions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page domain.SessionPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *APIClient) sessionAction(ctx context.Context, sessionID, action string) (*domain.ChatSession, error) {
	var session domain.ChatSession
	path := "/admin/chat/sessions/" + url.PathEscape(sessionID) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ClaimSession calls POST /admin/chat/sessions/:id/claim.
func (c *APIClient) ClaimSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	return c.sessionAction(ctx, sessionID, "claim")
}

// CloseSession calls POST /admin/chat/sessions/:id/close.
func (c *APIClient) CloseSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	return c.sessionAction(ctx, sessionID, "close")
}

// ArchiveSession calls POST /admin/chat/sessions/:id/archive.
func (c *APIClient) ArchiveSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	return c.sessionAction(ctx, sessionID, "archive")
}

// GetHistory calls GET /admin/chat/sessions/:id/history.
func (c *APIClient) GetHistory(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	var history domain.HistoryResponse
	if err := c.do(ctx, http.MethodGet, "/admin/chat/sessions/"+url.PathEscape(sessionID)+"/history", nil, &history); err != nil {
		return nil, err
	}
	return history.Data, nil
}

// InitiateChat calls POST /chat/initiate as a visitor.
func (c *APIClient) InitiateChat(ctx context.Context, req domain.InitiateChatRequest) (*domain.InitiateChatResponse, error) {
	var resp domain.InitiateChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/initiate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
