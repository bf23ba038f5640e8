package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PaulBabatuyi/chatsync/internal/auth"
	"github.com/PaulBabatuyi/chatsync/internal/chat"
	"github.com/PaulBabatuyi/chatsync/internal/data"
	"github.com/PaulBabatuyi/chatsync/internal/media"
	"github.com/PaulBabatuyi/chatsync/internal/middleware"
	"github.com/PaulBabatuyi/chatsync/internal/presence"
	"github.com/PaulBabatuyi/chatsync/internal/realtime"

	"github.com/gorilla/websocket"
)

// clock is a settable, goroutine-safe time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	t     *testing.T
	srv   *httptest.Server
	clock *clock
	users data.UserStore
}

func newTestEnv(t *testing.T, st *stores, rpm int) *testEnv {
	t.Helper()
	if st == nil {
		st = &stores{
			users: data.NewMemoryUsers(),
			chats: data.NewMemoryChats(),
			msgs:  data.NewMemoryMessages(),
		}
	}
	clk := &clock{t: time.Now().UTC()}

	blobs, err := media.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	limiter := middleware.NewLimiterStore(rpm, rpm, time.Minute)
	t.Cleanup(limiter.Stop)

	dir := presence.NewDirectory()
	router := realtime.NewRouter(dir, nil)
	svc := chat.NewService(st.chats, st.msgs, st.users, nil, chat.WithClock(clk.Now))
	lc := realtime.NewLifecycle(dir, router, st.users, svc, nil)

	s := newServer(serverDeps{
		Chat:       svc,
		Users:      st.users,
		Auth:       auth.NewJWTManager("test-secret", time.Hour),
		Push:       router,
		Lifecycle:  lc,
		Blobs:      blobs,
		Signer:     media.NewSigner("media-secret", time.Minute, "/media"),
		Limiter:    limiter,
		CORSOrigin: "*",
	})
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, clock: clk, users: st.users}
}

// noRedirect keeps 302s visible to the test.
var noRedirect = &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}}

// call sends a JSON request and decodes the JSON response.
func (e *testEnv) call(method, path, token string, body any) (int, map[string]any) {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			e.t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		e.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.do(req, token)
}

func (e *testEnv) do(req *http.Request, token string) (int, map[string]any) {
	e.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			e.t.Fatalf("%s %s: decode: %v", req.Method, req.URL.Path, err)
		}
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		out["location"] = loc
	}
	return resp.StatusCode, out
}

// signup registers a user and returns its bearer token.
func (e *testEnv) signup(name, email string) string {
	e.t.Helper()
	b, _ := json.Marshal(authRequest{Name: name, Email: email, Password: "password1"})
	resp, err := http.Post(e.srv.URL+"/signup", "application/json", bytes.NewReader(b))
	if err != nil {
		e.t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("signup %s: status %d", email, resp.StatusCode)
	}
	token, ok := strings.CutPrefix(resp.Header.Get("Authorization"), "Bearer ")
	if !ok {
		e.t.Fatal("signup returned no token")
	}
	return token
}

func (e *testEnv) startChat(token, other string) string {
	e.t.Helper()
	code, body := e.call(http.MethodPost, "/chats", token, peerRequest{Email: other})
	if code != http.StatusOK {
		e.t.Fatalf("start chat: %d %v", code, body)
	}
	return body["chatId"].(string)
}

func (e *testEnv) send(token, chatID, msgType, text string) map[string]any {
	e.t.Helper()
	code, body := e.call(http.MethodPost, "/messages", token, sendRequest{ChatID: chatID, MsgType: msgType, Text: text})
	if code != http.StatusCreated {
		e.t.Fatalf("send: %d %v", code, body)
	}
	return body["message"].(map[string]any)
}

func (e *testEnv) history(token, chatID string) []map[string]any {
	e.t.Helper()
	code, body := e.call(http.MethodGet, "/chats/"+chatID+"/messages", token, nil)
	if code != http.StatusOK {
		e.t.Fatalf("history: %d %v", code, body)
	}
	raw, _ := body["messages"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.(map[string]any))
	}
	return out
}

func (e *testEnv) dial(token string) *websocket.Conn {
	e.t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	if err != nil {
		e.t.Fatalf("dial: %v", err)
	}
	e.t.Cleanup(func() { ws.Close() })
	return ws
}

// await reads frames until one carries event.
func await(t *testing.T, ws *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var env realtime.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env.Data
		}
	}
}

func TestSignupAndLogin(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	e.signup("alice", "Alice@Example.com")

	code, _ := e.call(http.MethodPost, "/signup", "", authRequest{Name: "alice", Email: "alice@example.com", Password: "password1"})
	if code != http.StatusConflict {
		t.Errorf("duplicate signup = %d, want 409", code)
	}
	code, _ = e.call(http.MethodPost, "/signup", "", authRequest{Name: "x", Email: "not-an-email", Password: "password1"})
	if code != http.StatusBadRequest {
		t.Errorf("bad email signup = %d, want 400", code)
	}

	code, body := e.call(http.MethodPost, "/login", "", authRequest{Email: "alice@example.com", Password: "password1"})
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("login = %d %v", code, body)
	}
	if user, _ := body["user"].(map[string]any); user["password"] != nil {
		t.Error("login leaked the password hash")
	}
	code, _ = e.call(http.MethodPost, "/login", "", authRequest{Email: "alice@example.com", Password: "wrong-password"})
	if code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d", code)
	}
	code, _ = e.call(http.MethodPost, "/login", "", authRequest{Email: "nobody@example.com", Password: "password1"})
	if code != http.StatusNotFound {
		t.Errorf("unknown user = %d", code)
	}
}

func TestCookieAuthAndLogout(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	e.signup("alice", "alice@example.com")

	b, _ := json.Marshal(authRequest{Email: "alice@example.com", Password: "password1"})
	resp, err := http.Post(e.srv.URL+"/login", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == tokenCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("token cookie = %+v", cookie)
	}

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/chats", nil)
	req.AddCookie(cookie)
	if code, _ := e.do(req, ""); code != http.StatusOK {
		t.Errorf("cookie auth = %d", code)
	}

	resp, err = http.Get(e.srv.URL + "/logout")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	for _, c := range resp.Cookies() {
		if c.Name == tokenCookie && c.MaxAge >= 0 {
			t.Error("logout did not expire the cookie")
		}
	}
}

func TestRequiresAuth(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	for _, path := range []string{"/chats", "/friends", "/chats/abc/messages"} {
		code, body := e.call(http.MethodGet, path, "", nil)
		if code != http.StatusUnauthorized || body["success"] != false {
			t.Errorf("GET %s = %d %v", path, code, body)
		}
	}
	if code, _ := e.call(http.MethodGet, "/chats", "garbage", nil); code != http.StatusUnauthorized {
		t.Errorf("bad token = %d", code)
	}
}

func TestSendPushesAndPersists(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")
	bob := e.signup("bob", "bob@example.com")
	chatID := e.startChat(alice, "bob@example.com")

	ws := e.dial(bob)
	await(t, ws, string(realtime.KindPresence))

	sent := e.send(alice, chatID, "text", "hello <b>bob</b>")
	if sent["text"] != "hello <b>bob</b>" {
		t.Errorf("text altered: %v", sent["text"])
	}

	var pushed data.Message
	if err := json.Unmarshal(await(t, ws, string(realtime.KindMessage)), &pushed); err != nil {
		t.Fatal(err)
	}
	if pushed.ID.Hex() != sent["id"] || pushed.Sender != "alice@example.com" {
		t.Errorf("pushed = %+v", pushed)
	}

	hist := e.history(bob, chatID)
	if len(hist) != 1 || hist[0]["id"] != sent["id"] {
		t.Fatalf("history = %v", hist)
	}

	code, body := e.call(http.MethodGet, "/friends", bob, nil)
	friends, _ := body["friends"].([]any)
	if code != http.StatusOK || len(friends) != 1 {
		t.Fatalf("friends = %d %v", code, body)
	}
	if f := friends[0].(map[string]any); f["email"] != "alice@example.com" || f["lastMessage"] != sent["text"] {
		t.Errorf("friend = %v", f)
	}
}

func TestSendToOfflineUserStillSucceeds(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")
	bob := e.signup("bob", "bob@example.com")
	chatID := e.startChat(alice, "bob@example.com")

	sent := e.send(alice, chatID, "text", "are you there")
	hist := e.history(bob, chatID)
	if len(hist) != 1 || hist[0]["id"] != sent["id"] {
		t.Fatalf("offline recipient history = %v", hist)
	}
}

func TestDeleteScopes(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")
	bob := e.signup("bob", "bob@example.com")
	chatID := e.startChat(alice, "bob@example.com")

	first := e.send(alice, chatID, "text", "first")
	second := e.send(alice, chatID, "text", "second")

	code, _ := e.call(http.MethodDelete, "/messages/"+first["id"].(string), bob, nil)
	if code != http.StatusOK {
		t.Fatalf("delete for me = %d", code)
	}
	if n := len(e.history(bob, chatID)); n != 1 {
		t.Errorf("bob sees %d messages, want 1", n)
	}
	if n := len(e.history(alice, chatID)); n != 2 {
		t.Errorf("alice sees %d messages, want 2", n)
	}

	ws := e.dial(bob)
	code, body := e.call(http.MethodDelete, "/messages/"+second["id"].(string)+"?for=everyone", alice, nil)
	if code != http.StatusOK {
		t.Fatalf("delete for everyone = %d %v", code, body)
	}
	var tomb data.Message
	if err := json.Unmarshal(await(t, ws, string(realtime.KindMessageDeleted)), &tomb); err != nil {
		t.Fatal(err)
	}
	if tomb.MsgType != data.MsgDeleted {
		t.Errorf("pushed tombstone = %+v", tomb)
	}

	for _, tok := range []string{alice, bob} {
		hist := e.history(tok, chatID)
		last := hist[len(hist)-1]
		if last["msgType"] != "deleted" || last["text"] != "This message was deleted" {
			t.Errorf("tombstone rendered as %v", last)
		}
	}

	if code, _ := e.call(http.MethodDelete, "/messages/"+first["id"].(string)+"?for=nobody", alice, nil); code != http.StatusBadRequest {
		t.Errorf("unknown scope = %d", code)
	}
}

func TestDeleteForEveryoneExpires(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")
	e.signup("bob", "bob@example.com")
	chatID := e.startChat(alice, "bob@example.com")
	msg := e.send(alice, chatID, "text", "too late")

	e.clock.Advance(61 * time.Minute)
	code, body := e.call(http.MethodDelete, "/messages/"+msg["id"].(string)+"?for=everyone", alice, nil)
	if code != http.StatusGone || body["success"] != false {
		t.Fatalf("expired delete = %d %v", code, body)
	}
	if hist := e.history(alice, chatID); hist[0]["msgType"] != "text" {
		t.Error("expired delete modified the message")
	}
}

func TestHideAndClearChat(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")
	bob := e.signup("bob", "bob@example.com")
	chatID := e.startChat(alice, "bob@example.com")
	e.send(alice, chatID, "text", "one")

	if code, _ := e.call(http.MethodDelete, "/chats/"+chatID+"/messages", bob, nil); code != http.StatusOK {
		t.Fatalf("clear = %d", code)
	}
	if n := len(e.history(bob, chatID)); n != 0 {
		t.Errorf("cleared chat shows %d messages", n)
	}
	_, body := e.call(http.MethodGet, "/chats", bob, nil)
	if chats, _ := body["chats"].([]any); len(chats) != 1 {
		t.Errorf("cleared chat left the list: %v", body)
	}

	if code, _ := e.call(http.MethodDelete, "/chats/"+chatID, alice, nil); code != http.StatusOK {
		t.Fatalf("hide = %d", code)
	}
	_, body = e.call(http.MethodGet, "/chats", alice, nil)
	if chats, _ := body["chats"].([]any); len(chats) != 0 {
		t.Errorf("hidden chat still listed: %v", body)
	}

	if got := e.startChat(alice, "bob@example.com"); got != chatID {
		t.Errorf("restart created %s, want %s", got, chatID)
	}
	_, body = e.call(http.MethodGet, "/chats", alice, nil)
	if chats, _ := body["chats"].([]any); len(chats) != 1 {
		t.Errorf("restarted chat not listed: %v", body)
	}
	if n := len(e.history(alice, chatID)); n != 0 {
		t.Errorf("old messages resurfaced: %d", n)
	}
}

func TestNonParticipantForbidden(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")
	e.signup("bob", "bob@example.com")
	carol := e.signup("carol", "carol@example.com")
	chatID := e.startChat(alice, "bob@example.com")
	msg := e.send(alice, chatID, "text", "private")

	checks := []struct{ method, path string }{
		{http.MethodGet, "/chats/" + chatID + "/messages"},
		{http.MethodGet, "/chats/" + chatID + "/friend"},
		{http.MethodDelete, "/messages/" + msg["id"].(string)},
	}
	for _, c := range checks {
		if code, _ := e.call(c.method, c.path, carol, nil); code != http.StatusForbidden {
			t.Errorf("%s %s = %d, want 403", c.method, c.path, code)
		}
	}
	code, _ := e.call(http.MethodPost, "/messages", carol, sendRequest{ChatID: chatID, MsgType: "text", Text: "hi"})
	if code != http.StatusForbidden {
		t.Errorf("send into foreign chat = %d", code)
	}
}

func TestLookupSearchAndProfile(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")
	e.signup("bob", "bob@example.com")

	if code, _ := e.call(http.MethodPost, "/chats/lookup", alice, peerRequest{Email: "bob@example.com"}); code != http.StatusNotFound {
		t.Errorf("lookup before start = %d", code)
	}
	chatID := e.startChat(alice, "bob@example.com")
	_, body := e.call(http.MethodPost, "/chats/lookup", alice, peerRequest{Email: "bob@example.com"})
	if body["chatId"] != chatID {
		t.Errorf("lookup = %v", body)
	}

	_, body = e.call(http.MethodGet, "/chats/"+chatID+"/friend", alice, nil)
	if body["friendEmail"] != "bob@example.com" {
		t.Errorf("friend = %v", body)
	}

	_, body = e.call(http.MethodPost, "/search", alice, map[string]string{"name": "bob"})
	result, _ := body["result"].([]any)
	if len(result) != 1 || result[0].(map[string]any)["password"] != nil {
		t.Errorf("search = %v", body)
	}

	code, body := e.call(http.MethodGet, "/users/bob@example.com", alice, nil)
	if code != http.StatusOK || body["user"].(map[string]any)["email"] != "bob@example.com" {
		t.Fatalf("profile = %d %v", code, body)
	}

	bobID, _ := body["user"].(map[string]any)["id"].(string)
	code, body = e.call(http.MethodGet, "/users/id/"+bobID, alice, nil)
	if code != http.StatusOK || body["user"].(map[string]any)["email"] != "bob@example.com" {
		t.Errorf("profile by id = %d %v", code, body)
	}
	if code, _ := e.call(http.MethodGet, "/users/id/not-an-id", alice, nil); code != http.StatusBadRequest {
		t.Errorf("malformed id = %d", code)
	}
}

func (e *testEnv) upload(path, method, field, token string, files map[string]string) (int, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+name+`"`)
		part, err := mw.CreatePart(h)
		if err != nil {
			e.t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	mw.Close()
	req, _ := http.NewRequest(method, e.srv.URL+path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(req, token)
}

func TestMediaUploadAndDownload(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")
	bob := e.signup("bob", "bob@example.com")
	carol := e.signup("carol", "carol@example.com")
	chatID := e.startChat(alice, "bob@example.com")

	code, body := e.upload("/media", http.MethodPost, "media", alice, map[string]string{"notes.pdf": "%PDF-1.4 hello"})
	if code != http.StatusOK {
		t.Fatalf("upload = %d %v", code, body)
	}
	obj := body["media"].([]any)[0].(map[string]any)
	if obj["resourceType"] != media.ResourceRaw || obj["originalName"] != "notes.pdf" {
		t.Fatalf("uploaded = %v", obj)
	}

	code, body = e.call(http.MethodPost, "/messages", alice, sendRequest{
		ChatID:       chatID,
		MsgType:      "pdf",
		Text:         obj["contentId"].(string),
		ResourceType: obj["resourceType"].(string),
		FileName:     "notes.pdf",
	})
	if code != http.StatusCreated {
		t.Fatalf("send media = %d %v", code, body)
	}
	msgID := body["message"].(map[string]any)["id"].(string)

	code, body = e.call(http.MethodGet, "/download/"+msgID, bob, nil)
	if code != http.StatusFound {
		t.Fatalf("download = %d %v", code, body)
	}
	resp, err := http.Get(e.srv.URL + body["location"].(string))
	if err != nil {
		t.Fatal(err)
	}
	content, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(content) != "%PDF-1.4 hello" {
		t.Fatalf("signed fetch = %d %q", resp.StatusCode, content)
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "notes.pdf") {
		t.Errorf("disposition = %q", resp.Header.Get("Content-Disposition"))
	}

	if code, _ := e.call(http.MethodGet, "/download/"+msgID, carol, nil); code != http.StatusForbidden {
		t.Errorf("non-participant download = %d", code)
	}
	if code, _ := e.call(http.MethodGet, "/media/"+obj["contentId"].(string)+"?token=forged", "", nil); code != http.StatusForbidden {
		t.Errorf("unsigned fetch = %d", code)
	}

	many := map[string]string{}
	for i := 0; i < maxUploadFiles+1; i++ {
		many[string(rune('a'+i))+".txt"] = "x"
	}
	if code, _ := e.upload("/media", http.MethodPost, "media", alice, many); code != http.StatusBadRequest {
		t.Errorf("oversized batch = %d", code)
	}
}

func TestProfileImage(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")

	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 16)
	code, body := e.upload("/profile/image", http.MethodPatch, "profile-image", alice, map[string]string{"me.png": png})
	if code != http.StatusOK {
		t.Fatalf("profile image = %d %v", code, body)
	}
	url := body["profileImageUrl"].(string)

	resp, err := http.Get(e.srv.URL + url)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("avatar fetch = %d", resp.StatusCode)
	}

	_, body = e.call(http.MethodGet, "/users/alice@example.com", alice, nil)
	if body["user"].(map[string]any)["profileImageUrl"] != url {
		t.Errorf("profile not updated: %v", body)
	}

	code, _ = e.upload("/profile/image", http.MethodPatch, "profile-image", alice, map[string]string{"doc.txt": "plain text"})
	if code != http.StatusBadRequest {
		t.Errorf("non-image avatar = %d", code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	e := newTestEnv(t, nil, 2)
	creds := authRequest{Email: "nobody@example.com", Password: "password1"}
	var last int
	for i := 0; i < 3; i++ {
		last, _ = e.call(http.MethodPost, "/login", "", creds)
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third login = %d, want 429", last)
	}
}

func TestSocketDisconnectRecordsLastSeen(t *testing.T) {
	e := newTestEnv(t, nil, 100)
	alice := e.signup("alice", "alice@example.com")
	bob := e.signup("bob", "bob@example.com")

	bobWS := e.dial(bob)
	await(t, bobWS, string(realtime.KindPresence))
	aliceWS := e.dial(alice)
	await(t, bobWS, string(realtime.KindPresence))

	if err := aliceWS.WriteJSON(realtime.Envelope{Event: realtime.EventUserOffline}); err != nil {
		t.Fatal(err)
	}
	raw := await(t, bobWS, string(realtime.KindPresence))
	var p realtime.Presence
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatal(err)
	}
	if len(p.Online) != 1 || p.Online[0] != "bob@example.com" {
		t.Errorf("online after alice left = %v", p.Online)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		u, err := e.users.GetUserByEmail(context.Background(), "alice@example.com")
		if err != nil {
			t.Fatal(err)
		}
		if u.LastSeen != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("lastSeen not recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
