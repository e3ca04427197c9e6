package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mobilechat/internal/auth"
	"mobilechat/internal/config"
	"mobilechat/internal/imtypes"
	"mobilechat/internal/kafka"
	"mobilechat/internal/models"
	"mobilechat/internal/storage"
)

type testServer struct {
	*httptest.Server
	app *App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Config{
		APIServer: config.APIServerConfig{WebSocketPath: "/ws"},
		Storage: config.StorageConfig{
			Type:          "local",
			LocalPath:     t.TempDir(),
			BaseURL:       "/uploads",
			MaxFileSizeMB: 1,
		},
		Auth: config.AuthConfig{
			JWTSecretKey: "test-secret",
			JWTExpiry:    time.Hour,
			Issuer:       "mobilechat-test",
			BcryptCost:   bcrypt.MinCost,
		},
		WebSocket:    config.WebSocketConfig{WriteWaitSeconds: 5, PongWaitSeconds: 60, PingPeriodSeconds: 50, SendBufferSize: 64},
		Subscription: config.SubscriptionConfig{MaxBacklog: 16},
	}
	blobs, err := storage.NewLocalStorageService(cfg.Storage)
	if err != nil {
		t.Fatal(err)
	}
	infra := Infra{
		Store:     storage.NewMemoryStore(),
		Blobs:     blobs,
		Blacklist: auth.NewMemoryBlacklist(),
		Producer:  kafka.NoopProducer{},
	}
	a := New(cfg, infra, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(a.Handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testServer{Server: srv, app: a}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, out
}

func (s *testServer) expect(t *testing.T, want int, method, path, token string, body, dst any) {
	t.Helper()
	code, out := s.do(t, method, path, token, body)
	if code != want {
		t.Fatalf("%s %s = %d %s, want %d", method, path, code, out, want)
	}
	if dst != nil {
		if err := json.Unmarshal(out, dst); err != nil {
			t.Fatalf("%s %s: decode %s: %v", method, path, out, err)
		}
	}
}

// signUp registers and logs in, returning the user id and bearer token.
func (s *testServer) signUp(t *testing.T, email, nickname string) (string, string) {
	t.Helper()
	var user models.User
	s.expect(t, http.StatusCreated, http.MethodPost, "/auth/register", "",
		map[string]string{"email": email, "password": "password1", "nickname": nickname}, &user)
	var login struct {
		Token  string `json:"token"`
		UserID string `json:"userId"`
	}
	s.expect(t, http.StatusOK, http.MethodPost, "/auth/login", "",
		map[string]string{"email": email, "password": "password1"}, &login)
	if login.UserID != user.ID || login.Token == "" {
		t.Fatalf("login = %+v, user = %+v", login, user)
	}
	return user.ID, login.Token
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, http.MethodGet, "/api/v1/users/me", "", nil); code != http.StatusUnauthorized {
		t.Errorf("no token = %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/v1/users/me", "not-a-jwt", nil); code != http.StatusUnauthorized {
		t.Errorf("bad token = %d", code)
	}

	_, token := s.signUp(t, "alice@example.com", "alice1")
	var me models.User
	s.expect(t, http.StatusOK, http.MethodGet, "/api/v1/users/me", token, nil, &me)
	if me.Name != "alice1" {
		t.Errorf("me = %+v", me)
	}

	s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/auth/logout", token, nil, nil)
	if code, _ := s.do(t, http.MethodGet, "/api/v1/users/me", token, nil); code != http.StatusUnauthorized {
		t.Errorf("revoked token = %d", code)
	}
}

func TestRegisterConflicts(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "alice@example.com", "alice1")
	if code, body := s.do(t, http.MethodPost, "/auth/register", "",
		map[string]string{"email": "alice@example.com", "password": "password1"}); code != http.StatusConflict {
		t.Errorf("duplicate email = %d %s", code, body)
	}
	if code, body := s.do(t, http.MethodPost, "/auth/register", "",
		map[string]string{"email": "other@example.com", "password": "password1", "nickname": "alice1"}); code != http.StatusConflict {
		t.Errorf("duplicate nickname = %d %s", code, body)
	}
	if code, _ := s.do(t, http.MethodPost, "/auth/login", "",
		map[string]string{"email": "alice@example.com", "password": "nope-nope"}); code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d", code)
	}
}

func TestFriendRequestFlow(t *testing.T) {
	s := newTestServer(t)
	aliceID, alice := s.signUp(t, "alice@example.com", "alice1")
	bobID, bob := s.signUp(t, "bob@example.com", "bobby2")

	var lookup struct {
		UserID string `json:"userId"`
	}
	s.expect(t, http.StatusOK, http.MethodGet, "/api/v1/users/lookup?nickname=bobby2", alice, nil, &lookup)
	if lookup.UserID != bobID {
		t.Fatalf("lookup = %+v", lookup)
	}
	s.expect(t, http.StatusNotFound, http.MethodGet, "/api/v1/users/lookup?email=ghost@example.com", alice, nil, nil)

	s.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/friend-requests", alice, map[string]string{"userId": bobID}, nil)
	s.expect(t, http.StatusBadRequest, http.MethodPost, "/api/v1/friend-requests", alice, map[string]string{"userId": aliceID}, nil)

	var incoming []models.UserSummary
	s.expect(t, http.StatusOK, http.MethodGet, "/api/v1/friend-requests/incoming", bob, nil, &incoming)
	if len(incoming) != 1 || incoming[0].ID != aliceID || incoming[0].Name != "alice1" {
		t.Fatalf("incoming = %+v", incoming)
	}

	s.expect(t, http.StatusOK, http.MethodPost, "/api/v1/friend-requests/"+aliceID+"/accept", bob, nil, nil)
	var friends []models.UserSummary
	s.expect(t, http.StatusOK, http.MethodGet, "/api/v1/friends", alice, nil, &friends)
	if len(friends) != 1 || friends[0].ID != bobID {
		t.Fatalf("friends = %+v", friends)
	}

	s.expect(t, http.StatusOK, http.MethodDelete, "/api/v1/friends/"+bobID, alice, nil, nil)
	friends = nil
	s.expect(t, http.StatusOK, http.MethodGet, "/api/v1/friends", bob, nil, &friends)
	if len(friends) != 0 {
		t.Errorf("friends after unfriend = %+v", friends)
	}
}

func TestRoomsAndMessages(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signUp(t, "alice@example.com", "alice1")
	_, bob := s.signUp(t, "bob@example.com", "bobby2")

	var created struct {
		RoomID string `json:"roomId"`
	}
	s.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/rooms", alice,
		map[string]any{"name": "Secret", "secure": true, "password": "abc"}, &created)
	room := "/api/v1/rooms/" + created.RoomID

	s.expect(t, http.StatusForbidden, http.MethodGet, room+"/messages", bob, nil, nil)
	s.expect(t, http.StatusForbidden, http.MethodPost, room+"/join", bob, map[string]string{"password": "wrong"}, nil)
	s.expect(t, http.StatusOK, http.MethodPost, room+"/join", bob, map[string]string{"password": "abc"}, nil)

	var msg models.Message
	s.expect(t, http.StatusCreated, http.MethodPost, room+"/messages", bob, map[string]string{"text": "hello"}, &msg)
	if msg.SenderName != "bobby2" || msg.Seq != 1 {
		t.Errorf("message = %+v", msg)
	}
	s.expect(t, http.StatusBadRequest, http.MethodPost, room+"/messages", bob, map[string]string{"text": "  "}, nil)

	// 客户端提供的发送者名称被忽略
	var spoofed models.Message
	s.expect(t, http.StatusCreated, http.MethodPost, room+"/messages", bob,
		map[string]string{"text": "hi", "senderName": "alice1"}, &spoofed)
	if spoofed.SenderName != "bobby2" {
		t.Errorf("senderName = %q, want bobby2", spoofed.SenderName)
	}

	var msgs []models.Message
	s.expect(t, http.StatusOK, http.MethodGet, room+"/messages", alice, nil, &msgs)
	if len(msgs) != 2 || msgs[0].ID != msg.ID {
		t.Fatalf("messages = %+v", msgs)
	}
	s.expect(t, http.StatusBadRequest, http.MethodGet, room+"/messages?since=yesterday", alice, nil, nil)

	var rooms []models.RoomSummary
	s.expect(t, http.StatusOK, http.MethodGet, "/api/v1/rooms", bob, nil, &rooms)
	if len(rooms) != 1 || !rooms[0].Secure {
		t.Errorf("rooms = %+v", rooms)
	}

	s.expect(t, http.StatusForbidden, http.MethodDelete, room, bob, nil, nil)
	s.expect(t, http.StatusOK, http.MethodDelete, room, alice, nil, nil)
	s.expect(t, http.StatusNotFound, http.MethodGet, room, alice, nil, nil)
}

func dial(t *testing.T, s *testServer, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) imtypes.ServerFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame imtypes.ServerFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestLiveRoomList(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signUp(t, "alice@example.com", "alice1")

	if _, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/ws", nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous dial should be rejected with 401")
	}

	conn := dial(t, s, alice)
	if err := conn.WriteJSON(imtypes.ClientFrame{Op: imtypes.OpSubscribe, Topic: imtypes.TopicRooms}); err != nil {
		t.Fatal(err)
	}
	first := readFrame(t, conn)
	if first.Type != imtypes.FrameSnapshot || first.Topic != "rooms" || first.Seq != 1 {
		t.Fatalf("first frame = %+v", first)
	}

	var created struct {
		RoomID string `json:"roomId"`
	}
	s.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/rooms", alice, map[string]any{"name": "Lobby"}, &created)

	next := readFrame(t, conn)
	var rooms []models.RoomSummary
	if err := json.Unmarshal(next.Data, &rooms); err != nil {
		t.Fatal(err)
	}
	if next.Seq != 2 || len(rooms) != 1 || rooms[0].ID != created.RoomID {
		t.Fatalf("after create = %+v / %+v", next, rooms)
	}

	// 非成员不能订阅消息
	if err := conn.WriteJSON(imtypes.ClientFrame{Op: imtypes.OpSubscribe, Topic: imtypes.TopicMessages, RoomID: "missing"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != imtypes.FrameError {
		t.Errorf("subscribe to missing room = %+v", f)
	}
}

func TestDeleteAccountClosesLiveConnections(t *testing.T) {
	s := newTestServer(t)
	aliceID, alice := s.signUp(t, "alice@example.com", "alice1")
	conn := dial(t, s, alice)
	if err := conn.WriteJSON(imtypes.ClientFrame{Op: imtypes.OpSubscribe, Topic: imtypes.TopicFriends}); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn)

	deadline := time.Now().Add(2 * time.Second)
	for s.app.Sessions.ConnectionCount(aliceID) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.expect(t, http.StatusOK, http.MethodDelete, "/api/v1/account", alice, map[string]string{"password": "password1"}, nil)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Logf("connection ended with %v", err)
			}
			break
		}
	}
	if n := s.app.Sessions.ConnectionCount(aliceID); n != 0 {
		t.Errorf("connections after delete = %d", n)
	}
	if code, _ := s.do(t, http.MethodPost, "/auth/login", "",
		map[string]string{"email": "alice@example.com", "password": "password1"}); code != http.StatusUnauthorized {
		t.Errorf("login after delete = %d", code)
	}
}

func TestDeletedAccountTokensStopWorking(t *testing.T) {
	s := newTestServer(t)
	aliceID, alice := s.signUp(t, "alice@example.com", "alice1")
	bobID, bob := s.signUp(t, "bob@example.com", "bobby2")
	// 第二个会话，删除账户时不会被单独吊销
	var other struct {
		Token string `json:"token"`
	}
	s.expect(t, http.StatusOK, http.MethodPost, "/auth/login", "",
		map[string]string{"email": "alice@example.com", "password": "password1"}, &other)

	var created struct {
		RoomID string `json:"roomId"`
	}
	s.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/rooms", alice, map[string]any{"name": "Lobby"}, &created)
	room := "/api/v1/rooms/" + created.RoomID
	s.expect(t, http.StatusOK, http.MethodPost, room+"/join", bob, nil, nil)

	s.expect(t, http.StatusOK, http.MethodDelete, "/api/v1/account", alice, map[string]string{"password": "password1"}, nil)

	for _, token := range []string{alice, other.Token} {
		s.expect(t, http.StatusUnauthorized, http.MethodPost, room+"/messages", token, map[string]string{"text": "ghost"}, nil)
		s.expect(t, http.StatusUnauthorized, http.MethodPost, "/api/v1/rooms", token, map[string]any{"name": "Again"}, nil)
		s.expect(t, http.StatusUnauthorized, http.MethodGet, "/api/v1/users/me", token, nil, nil)

		url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			conn.Close()
			t.Fatal("websocket accepted a deleted account's token")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("websocket dial = %v, %v", resp, err)
		}
	}

	members, err := s.app.Rooms.Members(context.Background(), created.RoomID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0] != bobID {
		t.Errorf("members after delete = %v, want only %s (deleted %s)", members, bobID, aliceID)
	}
}
