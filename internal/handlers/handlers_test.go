package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-platform/internal/auth"
	"chat-platform/internal/config"
	"chat-platform/internal/database"
	"chat-platform/internal/hub"
	"chat-platform/internal/identity"
	"chat-platform/internal/membership"
	"chat-platform/internal/models"
	"chat-platform/internal/presence"
	"chat-platform/internal/router"
	"chat-platform/internal/services"
	"chat-platform/internal/summary"
	ws "chat-platform/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	msgs   []*models.Message
	users  map[int64]*models.User
}

func (s *memoryStore) save(_ context.Context, msg *models.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stored := *msg
	stored.ID = s.nextID
	s.msgs = append(s.msgs, &stored)
	return s.nextID, nil
}

func (s *memoryStore) SaveRoomMessage(ctx context.Context, m *models.Message) (int64, error) {
	return s.save(ctx, m)
}

func (s *memoryStore) SaveGroupMessage(ctx context.Context, m *models.Message) (int64, error) {
	return s.save(ctx, m)
}

func (s *memoryStore) SavePrivateMessage(ctx context.Context, m *models.Message) (int64, error) {
	return s.save(ctx, m)
}

func (s *memoryStore) GetRecentMessages(_ context.Context, scope models.Scope, id int64, count int) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Message
	for _, m := range s.msgs {
		if m.Scope == scope && m.ScopeID() == id {
			out = append(out, m)
		}
	}
	if len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

func (s *memoryStore) RecentSenders(context.Context, int64, int) ([]*models.UserPresence, error) {
	return nil, nil
}

func (s *memoryStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func (s *memoryStore) IsGroupMember(context.Context, int64, int64) (bool, error) {
	return false, nil
}

type testServer struct {
	srv      *httptest.Server
	auth     *auth.Service
	registry *presence.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &memoryStore{users: map[int64]*models.User{
		7: {ID: 7, Username: "alice"},
		8: {ID: 8, Username: "bob"},
	}}
	cfg := &config.Config{JWT: config.JWTConfig{Secret: []byte("secret"), ExpiresIn: time.Hour}}
	authService := auth.NewService(store, cfg)

	registry := presence.NewRegistry()
	resolver := identity.NewResolver(store, 16, time.Minute)
	dir := hub.NewDirectory()
	opts := hub.Options{Directory: dir, Store: store, HistorySize: 50}
	roomRouter := router.New(membership.New(), registry)

	presenceService := services.NewPresenceService(roomRouter.Members(), registry, store, resolver)
	engine := NewRouter(Routes{
		Auth:           authService,
		AuthHandlers:   NewAuthHandlers(presenceService),
		RoomHandlers:   NewRoomHandlers(presenceService, summary.NewService(store, nil, 50), store),
		WebSocket:      NewWebSocketHandlers(authService, ws.Options{}, []string{"*"}),
		Rooms:          hub.NewRoomHub(roomRouter, opts),
		Groups:         hub.NewGroupHub(router.New(membership.New(), registry), store, opts),
		Private:        hub.NewPrivateHub(router.NewPrivate(registry), resolver, opts),
		AllowedOrigins: []string{"*"},
	})

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, auth: authService, registry: registry}
}

func (s *testServer) token(t *testing.T, id int64) string {
	t.Helper()
	token, err := s.auth.IssueToken(&models.User{ID: id})
	require.NoError(t, err)
	return token
}

func (s *testServer) dial(t *testing.T, path string, userID int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + path + "?token=" + s.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (s *testServer) get(t *testing.T, path string, userID int64) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
	require.NoError(t, err)
	if userID > 0 {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func send(t *testing.T, conn *websocket.Conn, cmd models.Command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

// readUntil reads events until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(*models.Event) bool) *models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var evt models.Event
		require.NoError(t, conn.ReadJSON(&evt))
		if match(&evt) {
			return &evt
		}
	}
}

func isMessage(content string) func(*models.Event) bool {
	return func(evt *models.Event) bool {
		return evt.Type == models.EventMessage && evt.Message != nil && evt.Message.Content == content
	}
}

func TestRoomChatOverWebsocket(t *testing.T) {
	s := newTestServer(t)

	alice := s.dial(t, "/ws/room", 7)
	send(t, alice, models.Command{Action: models.ActionJoin, ScopeID: 42})
	readUntil(t, alice, isMessage("alice joined"))

	bob := s.dial(t, "/ws/room", 8)
	send(t, bob, models.Command{Action: models.ActionJoin, ScopeID: 42})
	members := readUntil(t, bob, func(evt *models.Event) bool { return evt.Type == models.EventOnlineUsers })
	assert.Equal(t, 2, members.UserCount)
	readUntil(t, alice, isMessage("bob joined"))

	send(t, alice, models.Command{Action: models.ActionSend, Content: "hi"})
	got := readUntil(t, bob, isMessage("hi"))
	assert.Equal(t, "alice", got.Message.SenderName)
	assert.Positive(t, got.Message.ID)

	resp := s.get(t, "/rooms/42/active", 7)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var active struct {
		UserCount int `json:"user_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&active))
	assert.Equal(t, 2, active.UserCount)

	require.NoError(t, bob.Close())
	readUntil(t, alice, isMessage("bob left"))
	assert.Eventually(t, func() bool { return !s.registry.IsOnline(8) }, 2*time.Second, 10*time.Millisecond)
}

func TestSendBeforeJoinReturnsErrorEvent(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "/ws/room", 7)

	send(t, alice, models.Command{Action: models.ActionSend, Content: "hi"})
	evt := readUntil(t, alice, func(evt *models.Event) bool { return evt.Type == models.EventError })
	assert.Equal(t, "not_bound", evt.Code)

	send(t, alice, models.Command{Action: models.ActionJoin, ScopeID: 1})
	readUntil(t, alice, isMessage("alice joined"))
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	s := newTestServer(t)
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/room?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRESTRequiresToken(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.get(t, "/presence/online", 0).StatusCode)
	assert.Equal(t, http.StatusOK, s.get(t, "/presence/online", 7).StatusCode)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/rooms/abc/active", 7).StatusCode)
	assert.Equal(t, http.StatusOK, s.get(t, "/healthz", 0).StatusCode)
}

func TestSummaryWithoutUpstream(t *testing.T) {
	s := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/rooms/3/summary", strings.NewReader(`{"count":5}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token(t, 7))
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestGroupSummaryRequiresMembership(t *testing.T) {
	s := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/groups/3/summary", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token(t, 7))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
