package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhq/deskchat/credential"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *credential.Static, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := credential.NewStatic(credential.Credentials{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	})
	return MustNewClient(srv.URL, creds), creds, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGetMessages(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/chat/rooms/7/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("size"))
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))

		writeJSON(t, w, &MessagePage{
			Items: []*Message{
				{ID: 25, RoomID: 7, Seq: 25, SenderID: "peer@desk.io", Content: "later"},
				{ID: 24, RoomID: 7, Seq: 24, SenderID: "peer@desk.io", Content: "earlier"},
			},
			TotalCount: 45,
		})
	})
	c, _, _ := newTestClient(t, handler)

	page, err := c.GetMessages(context.Background(), 7, 2, 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 45, page.TotalCount)
	assert.Equal(t, int64(25), page.Items[0].Seq, "items arrive most-recent-first")
}

func TestSendMessageDefaultsType(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/rooms/7/messages", r.URL.Path)

		var req SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, MessageTypeText, req.MessageType)
		assert.Equal(t, "hello", req.Content)

		writeJSON(t, w, &Message{
			ID: 100, RoomID: 7, Seq: 46, SenderID: "me@desk.io",
			MessageType: req.MessageType, Content: req.Content,
			CreatedAt: time.Now().UTC(),
		})
	})
	c, _, _ := newTestClient(t, handler)

	req := &SendMessageRequest{Content: "hello"}
	msg, err := c.SendMessage(context.Background(), 7, req)
	require.NoError(t, err)
	assert.Equal(t, int64(100), msg.ID)
	assert.Equal(t, int64(46), msg.Seq)
	assert.Empty(t, req.MessageType, "caller's request must not be mutated")
}

func TestMarkRead(t *testing.T) {
	var got atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/chat/rooms/7/read", r.URL.Path)

		var req ReadUpdateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got.Store(req.MessageSeq)
		w.WriteHeader(http.StatusOK)
	})
	c, _, _ := newTestClient(t, handler)

	require.NoError(t, c.MarkRead(context.Background(), 7, 45))
	assert.Equal(t, int64(45), got.Load())
}

func TestListRoomsArrayBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/rooms", r.URL.Path)
		writeJSON(t, w, []*Room{
			{ID: 1, RoomType: RoomTypeDirect, Participants: []Participant{
				{UserID: "me@desk.io", Nickname: "Me"},
				{UserID: "peer@desk.io", Nickname: "Peer"},
			}},
			{ID: 2, RoomType: RoomTypeGroup, Name: "support"},
		})
	})
	c, _, _ := newTestClient(t, handler)

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Peer", rooms[0].DisplayName("me@desk.io"))
	assert.Equal(t, "support", rooms[1].DisplayName("me@desk.io"))
}

func TestExpiredTokenRefreshAndRetry(t *testing.T) {
	var messageHits, refreshHits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat/rooms/7/messages":
			messageHits.Add(1)
			if r.Header.Get("Authorization") == "Bearer access-1" {
				writeJSON(t, w, map[string]string{"error": ReasonExpiredToken})
				return
			}
			assert.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
			writeJSON(t, w, &MessagePage{TotalCount: 0})
		case "/api/member/refresh":
			refreshHits.Add(1)
			assert.Equal(t, "refresh-1", r.URL.Query().Get("refreshToken"))
			writeJSON(t, w, credential.Credentials{
				AccessToken:  "access-2",
				RefreshToken: "refresh-2",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	c, creds, _ := newTestClient(t, handler)

	_, err := c.GetMessages(context.Background(), 7, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int32(2), messageHits.Load(), "expired token retries exactly once")
	assert.Equal(t, int32(1), refreshHits.Load())

	// Rotated pair was persisted
	stored, err := creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "access-2", stored.AccessToken)
	assert.Equal(t, "refresh-2", stored.RefreshToken)
}

func TestExpiredTokenRefreshRejected(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat/rooms/7/messages":
			writeJSON(t, w, map[string]string{"error": ReasonExpiredToken})
		case "/api/member/refresh":
			writeJSON(t, w, map[string]string{"error": ReasonRequireLogin})
		}
	})
	c, _, _ := newTestClient(t, handler)

	_, err := c.GetMessages(context.Background(), 7, 1, 20)
	require.Error(t, err)
}

func TestRequireLoginWithoutCredentials(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) })
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := MustNewClient(srv.URL, credential.NewStatic(credential.Credentials{}))
	_, err := c.GetMessages(context.Background(), 7, 1, 20)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsRequireLogin())
	assert.Equal(t, int32(0), hits.Load(), "no request without credentials")
}

func TestServerStatusWithoutPayload(t *testing.T) {
	// A crashed backend or an intermediary answers with a bare status and an
	// empty or HTML body, never a structured error payload.
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"empty body", http.StatusInternalServerError, ""},
		{"html body", http.StatusBadGateway, "<html>Bad Gateway</html>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				if tc.body != "" {
					w.Write([]byte(tc.body))
				}
			})
			c, _, _ := newTestClient(t, handler)

			page, err := c.GetMessages(context.Background(), 7, 1, 20)
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Nil(t, page, "a failed fetch must not yield an empty page")
		})
	}
}

func TestProactiveRefreshOnExpiredClaim(t *testing.T) {
	var messageHits, refreshHits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat/rooms/7/messages":
			messageHits.Add(1)
			assert.Equal(t, "Bearer access-2", r.Header.Get("Authorization"),
				"a token past its expiry claim must never be sent to the API")
			writeJSON(t, w, &MessagePage{TotalCount: 0})
		case "/api/member/refresh":
			refreshHits.Add(1)
			writeJSON(t, w, credential.Credentials{
				AccessToken:  "access-2",
				RefreshToken: "refresh-2",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "me@desk.io",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	creds := credential.NewStatic(credential.Credentials{
		AccessToken:  expired,
		RefreshToken: "refresh-1",
	})
	c := MustNewClient(srv.URL, creds)

	_, err = c.GetMessages(context.Background(), 7, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int32(1), messageHits.Load())
	assert.Equal(t, int32(1), refreshHits.Load())
}

func TestServerErrorPayload(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"error": "ROOM_NOT_FOUND"})
	})
	c, _, _ := newTestClient(t, handler)

	_, err := c.GetRoom(context.Background(), 404)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ROOM_NOT_FOUND", apiErr.Reason)
	assert.False(t, apiErr.IsExpiredToken())
}
