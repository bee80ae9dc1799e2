package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

func TestAPIClientListSessions(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/chat/sessions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.SessionPage{
			Data:       []domain.ChatSession{{ID: "v1", Status: domain.SessionStatusActive}},
			Pagination: domain.NewPagination(2, 20, 21),
		})
	}))
	defer ts.Close()

	c := NewAPIClient(ts.URL+"/", "tok", 0)
	page, err := c.ListSessions(context.Background(), domain.SessionQuery{Status: domain.FilterActive, Page: 2, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "v1", page.Data[0].ID)
	assert.Equal(t, 2, page.Pagination.TotalPages)
}

func TestAPIClientMapsErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/chat/sessions/v1/claim":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"chat session already claimed by another admin","code":"chat.conflict"}`))
		case "/admin/chat/sessions/v1/close":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	c := NewAPIClient(ts.URL, "tok", 0)

	_, err := c.ClaimSession(context.Background(), "v1")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "chat session already claimed by another admin", apperr.Message(err))

	_, err = c.CloseSession(context.Background(), "v1")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = c.GetHistory(context.Background(), "v1")
	assert.ErrorIs(t, err, apperr.ErrFetchFailed)
}

func TestAPIClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewAPIClient(url, "", 0).GetHistory(context.Background(), "v1")
	assert.ErrorIs(t, err, apperr.ErrFetchFailed)
}

func TestAPIClientInitiateChat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		var req domain.InitiateChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "v9", req.VisitorID)

		_ = json.NewEncoder(w).Encode(domain.InitiateChatResponse{
			Success: true, Message: "Chat initiated. An admin will be with you shortly.", ConversationID: "v9", MessageID: "m1",
		})
	}))
	defer ts.Close()

	resp, err := NewAPIClient(ts.URL, "", 0).InitiateChat(context.Background(), domain.InitiateChatRequest{VisitorID: "v9", InitialMessageText: "hello"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "v9", resp.ConversationID)
}
