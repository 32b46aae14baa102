package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwork/scanwork/internal/transport"
)

// scriptedServer answers every POST with the body registered for its path and
// counts requests per path.
type scriptedServer struct {
	srv    *httptest.Server
	bodies map[string]string
	status map[string]int
	hits   map[string]*int64
}

func newScriptedServer(t *testing.T) *scriptedServer {
	t.Helper()
	s := &scriptedServer{
		bodies: make(map[string]string),
		status: make(map[string]int),
		hits:   make(map[string]*int64),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := s.hits[r.URL.Path]; ok {
			atomic.AddInt64(c, 1)
		}
		body, ok := s.bodies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if code, ok := s.status[r.URL.Path]; ok {
			w.WriteHeader(code)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *scriptedServer) respond(path, body string) {
	s.bodies[path] = body
	var n int64
	s.hits[path] = &n
}

func (s *scriptedServer) respondStatus(path string, status int, body string) {
	s.respond(path, body)
	s.status[path] = status
}

func (s *scriptedServer) calls(path string) int64 {
	c, ok := s.hits[path]
	if !ok {
		return 0
	}
	return atomic.LoadInt64(c)
}

func newTestSession(t *testing.T, srv *scriptedServer) (*SessionServiceImpl, *Buses) {
	t.Helper()
	buses := NewBuses()
	store := NewStateStore(buses)
	client := transport.NewClient(srv.srv.URL)
	return NewSessionService(client, buses, store), buses
}

func TestSessionService_LoginSuccess(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/login", `{"MessageType":"login","Bearer":"tok-123","UserName":"Кладовщик"}`)
	sess, _ := newTestSession(t, srv)

	res, err := sess.Login(context.Background(), "u1", "pw")
	require.NoError(t, err)
	assert.Equal(t, LoginSuccess, res.Outcome)
	assert.Equal(t, "tok-123", res.Bearer)

	bearer, ok := sess.Bearer()
	require.True(t, ok)
	assert.Equal(t, "tok-123", bearer)
}

func TestSessionService_LoginRejected(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/login", `{"MessageType":"login","Bearer":"","Message":"Неверный пароль"}`)
	sess, _ := newTestSession(t, srv)

	res, err := sess.Login(context.Background(), "u1", "bad")
	require.NoError(t, err)
	assert.Equal(t, LoginFailed, res.Outcome)
	assert.Equal(t, "Неверный пароль", res.Message)

	_, ok := sess.Bearer()
	assert.False(t, ok)
}

func TestSessionService_LoginRejectedDefaultMessage(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/login", `{"MessageType":"login","Bearer":""}`)
	sess, _ := newTestSession(t, srv)

	res, err := sess.Login(context.Background(), "u1", "bad")
	require.NoError(t, err)
	assert.Equal(t, LoginFailed, res.Outcome)
	assert.Equal(t, "Ошибка авторизации", res.Message)
}

func TestSessionService_LoginErrorResponse(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/login", `{"MessageType":"error","Message":"Пользователь заблокирован"}`)
	sess, buses := newTestSession(t, srv)

	res, err := sess.Login(context.Background(), "u1", "pw")
	require.NoError(t, err)
	assert.Equal(t, LoginFailed, res.Outcome)
	assert.Equal(t, "Пользователь заблокирован", res.Message)

	msg, ok := buses.Error.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "Пользователь заблокирован", msg)
}

func TestSessionService_LoginDialog(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/login", `{"MessageType":"dialog","DialogHeader":"Смена","DialogText":"Открыть смену?","Buttons":[{"Name":"Да","Id":"yes"}]}`)
	sess, buses := newTestSession(t, srv)

	res, err := sess.Login(context.Background(), "u1", "pw")
	require.NoError(t, err)
	assert.Equal(t, LoginDialogShown, res.Outcome)

	d, ok := buses.Dialog.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "Смена", d.Header)
	require.Len(t, d.Buttons, 1)
	assert.Equal(t, "yes", d.Buttons[0].ID)
}

func TestSessionService_LoginEmptyUserIsLocal(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/login", `{"MessageType":"login","Bearer":"tok"}`)
	sess, _ := newTestSession(t, srv)

	_, err := sess.Login(context.Background(), "  ", "pw")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.True(t, IsLocalPreconditionError(err))
	assert.EqualValues(t, 0, srv.calls("/login"), "local rejection must not reach the network")
}

func TestSessionService_ScanLogin(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/scanlogin", `{"MessageType":"login","Bearer":"tok-scan"}`)
	sess, _ := newTestSession(t, srv)

	res, err := sess.ScanLogin(context.Background(), "badge-007")
	require.NoError(t, err)
	assert.Equal(t, LoginSuccess, res.Outcome)
	assert.Equal(t, "tok-scan", res.Bearer)

	_, err = sess.ScanLogin(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSessionService_FetchUsers(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/users", `{"Users":[{"Name":"Иванов","Id":"u1"},{"Name":"Петров","Id":"u2"}]}`)
	sess, _ := newTestSession(t, srv)

	users, err := sess.FetchUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "Петров", users[1].Name)
}

func TestSessionService_FetchUsersDialog(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/users", `{"MessageType":"dialog","DialogText":"Сервер на обслуживании"}`)
	sess, buses := newTestSession(t, srv)

	users, err := sess.FetchUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)

	_, ok := buses.Dialog.TryReceive()
	assert.True(t, ok)
}

func TestSessionService_FetchUsersHTTPError(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respondStatus("/users", http.StatusBadGateway, `<html>bad gateway</html>`)
	sess, _ := newTestSession(t, srv)

	_, err := sess.FetchUsers(context.Background())
	require.ErrorIs(t, err, ErrHTTPStatus)
}

func TestSessionService_LogoutBestEffort(t *testing.T) {
	srv := newScriptedServer(t)
	srv.respond("/logout", `{}`)
	sess, _ := newTestSession(t, srv)

	// No session: no call at all.
	sess.Logout(context.Background())
	assert.EqualValues(t, 0, srv.calls("/logout"))

	sess.setBearer("tok")
	sess.Logout(context.Background())
	assert.EqualValues(t, 1, srv.calls("/logout"))

	// The bearer survives the ping; explicit sign-out clears it separately.
	_, ok := sess.Bearer()
	assert.True(t, ok)
}

func TestSessionService_LoginRequestCarriesPassword(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"MessageType":"login","Bearer":"tok"}`))
	}))
	defer srv.Close()

	buses := NewBuses()
	sess := NewSessionService(transport.NewClient(srv.URL), buses, NewStateStore(buses))

	_, err := sess.Login(context.Background(), "u1", "secret")
	require.NoError(t, err)
	assert.Equal(t, "login", captured["Form"])
	assert.Equal(t, "login", captured["Request"])
	assert.Equal(t, "u1", captured["User"])
	assert.Equal(t, "secret", captured["Password"])
}
