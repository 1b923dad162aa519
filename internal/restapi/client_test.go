package restapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snapcircle/dmsocket/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestListConversations(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages/conversations", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":true,"data":[{"userId":7,"username":"ann","unreadCount":2,"lastMessage":{"id":"m1","senderId":7,"receiverId":42,"content":"hey"}}]}`))
	})
	c := New(srv.URL+"/api/", "Bearer tok", nil)
	conversations, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	require.Equal(t, int64(7), conversations[0].UserID)
	require.Equal(t, "ann", conversations[0].Username)
	require.Equal(t, 2, conversations[0].UnreadCount)
	require.NotNil(t, conversations[0].LastMessage)
	require.Equal(t, chat.MessageID("m1"), conversations[0].LastMessage.ID)
}

func TestListConversationsPlainArray(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"userId":8,"username":"bob"}]`))
	})
	conversations, err := New(srv.URL, "", nil).ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	require.Nil(t, conversations[0].LastMessage)
}

func TestHistory(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/7", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":{"messages":[{"id":1,"senderId":7,"receiverId":42,"content":"a"},{"id":2,"senderId":42,"receiverId":7,"content":null,"imageUrl":"ipfs://x"}]}}`))
	})
	page, err := New(srv.URL, "tok", nil).History(context.Background(), 7, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.Equal(t, chat.MessageID("1"), page.Messages[0].ID)
	require.Nil(t, page.Messages[1].Content)
	require.Equal(t, "ipfs://x", page.Messages[1].ImageURL)
	require.True(t, page.HasMore)
	require.Equal(t, 2, page.Page)
}

func TestHistoryDefaults(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	})
	page, err := New(srv.URL, "tok", nil).History(context.Background(), 7, 0, 0)
	require.NoError(t, err)
	require.Empty(t, page.Messages)
	require.False(t, page.HasMore)
}

func TestStatusError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":"invalid token"}`))
	})
	_, err := New(srv.URL, "tok", nil).ListConversations(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.Code)
	require.Equal(t, "invalid token", statusErr.Message)
}

func TestUnexpectedBody(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"foo":1}}`))
	})
	_, err := New(srv.URL, "tok", nil).ListConversations(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedBody)

	srv = newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err = New(srv.URL, "tok", nil).History(context.Background(), 7, 1, 10)
	require.ErrorIs(t, err, ErrUnexpectedBody)
}
