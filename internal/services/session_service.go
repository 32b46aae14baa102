package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/scanwork/scanwork/internal/protocol"
	"github.com/scanwork/scanwork/internal/transport"
)

const errAuthDefault = "Ошибка авторизации"

// SessionServiceImpl implements SessionService.
type SessionServiceImpl struct {
	client *transport.Client
	buses  *Buses
	store  *StateStore
	logger *log.Logger

	mu     sync.RWMutex
	bearer string
}

// NewSessionService creates a new session service.
func NewSessionService(client *transport.Client, buses *Buses, store *StateStore) *SessionServiceImpl {
	return &SessionServiceImpl{client: client, buses: buses, store: store}
}

// SetLogger sets the logger for debug output.
func (s *SessionServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Bearer returns the current token, if a session exists.
func (s *SessionServiceImpl) Bearer() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bearer, s.bearer != ""
}

// ClearLocalSession drops the bearer immediately. Always succeeds.
func (s *SessionServiceImpl) ClearLocalSession() {
	s.mu.Lock()
	s.bearer = ""
	s.mu.Unlock()
}

func (s *SessionServiceImpl) setBearer(bearer string) {
	s.mu.Lock()
	s.bearer = bearer
	s.mu.Unlock()
}

// forceLogout invalidates the session and tells the UI to show the login
// form. Exactly one RequireLogin signal per forced-logout response.
func (s *SessionServiceImpl) forceLogout() {
	s.ClearLocalSession()
	if s.store != nil {
		s.store.Clear()
	}
	s.buses.AppEvent.Publish(AppEventRequireLogin)
}

// serverError publishes the message to the error banner bus and, for errors
// naming the login form, forces a logout.
func (s *SessionServiceImpl) serverError(c protocol.Classification) *ServerError {
	s.buses.Error.Publish(c.ErrMessage)
	if c.ForcedLogout {
		s.forceLogout()
	}
	return &ServerError{Message: c.ErrMessage, ForcedLogout: c.ForcedLogout}
}

// FetchUsers loads the login user roster. A dialog response yields an empty
// list, not an error: the dialog bus already carries it.
func (s *SessionServiceImpl) FetchUsers(ctx context.Context) ([]protocol.User, error) {
	res, err := s.client.Post(ctx, "/users", protocol.NewUserListRequest(), true)
	if err != nil {
		return nil, mapTransportError(err)
	}
	c := protocol.Classify(res.Body, protocol.FormLogin)
	switch c.Kind {
	case protocol.KindDialog:
		s.buses.Dialog.Publish(*c.Dialog)
		return nil, nil
	case protocol.KindError:
		return nil, s.serverError(c)
	}
	if !res.OK() {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, res.StatusCode)
	}
	var resp protocol.UserListResponse
	if err := json.Unmarshal(res.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: userlist: %v", ErrMalformedResponse, err)
	}
	return resp.Users, nil
}

// Login exchanges user credentials for a bearer token.
func (s *SessionServiceImpl) Login(ctx context.Context, userID, password string) (LoginResult, error) {
	if strings.TrimSpace(userID) == "" {
		return LoginResult{}, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	return s.doLogin(ctx, "/login", protocol.NewLoginRequest(userID, password))
}

// ScanLogin is the alternate credential path: one scanned token instead of
// user and password.
func (s *SessionServiceImpl) ScanLogin(ctx context.Context, text string) (LoginResult, error) {
	if strings.TrimSpace(text) == "" {
		return LoginResult{}, fmt.Errorf("%w: empty scan text", ErrInvalidInput)
	}
	return s.doLogin(ctx, "/scanlogin", protocol.NewLoginScanRequest(text))
}

func (s *SessionServiceImpl) doLogin(ctx context.Context, path string, req any) (LoginResult, error) {
	res, err := s.client.Post(ctx, path, req, true)
	if err != nil {
		return LoginResult{}, mapTransportError(err)
	}
	c := protocol.Classify(res.Body, protocol.FormLogin)
	switch c.Kind {
	case protocol.KindDialog:
		s.buses.Dialog.Publish(*c.Dialog)
		return LoginResult{Outcome: LoginDialogShown}, nil
	case protocol.KindError:
		s.buses.Error.Publish(c.ErrMessage)
		return LoginResult{Outcome: LoginFailed, Message: c.ErrMessage}, nil
	}
	if !res.OK() {
		return LoginResult{}, fmt.Errorf("%w: %d", ErrHTTPStatus, res.StatusCode)
	}
	var resp protocol.LoginResponse
	if err := json.Unmarshal(res.Body, &resp); err != nil {
		return LoginResult{}, fmt.Errorf("%w: login: %v", ErrMalformedResponse, err)
	}
	if strings.EqualFold(resp.MessageType, "login") && strings.TrimSpace(resp.Bearer) != "" {
		s.setBearer(resp.Bearer)
		return LoginResult{Outcome: LoginSuccess, Bearer: resp.Bearer}, nil
	}
	msg := resp.Message
	if msg == "" {
		msg = errAuthDefault
	}
	return LoginResult{Outcome: LoginFailed, Message: msg}, nil
}

// Logout notifies the server, best effort. Failures are swallowed and the
// local bearer stays: explicit sign-out clears it separately.
func (s *SessionServiceImpl) Logout(ctx context.Context) {
	bearer, ok := s.Bearer()
	if !ok {
		return
	}
	if _, err := s.client.Post(ctx, "/logout", protocol.NewLogoutRequest(bearer), false); err != nil {
		if s.logger != nil {
			s.logger.Printf("logout ping failed: %v", err)
		}
	}
}
