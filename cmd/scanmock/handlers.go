package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// envelope covers every request shape the client sends; unused fields stay
// zero.
type envelope struct {
	Form       string `json:"Form"`
	FormID     string `json:"FormId"`
	Request    string `json:"Request"`
	Bearer     string `json:"Bearer"`
	User       string `json:"User"`
	Password   string `json:"Password"`
	Text       string `json:"Text"`
	ButtonID   string `json:"ButtonId"`
	SelectedID string `json:"SelectedId"`
	DeleteID   string `json:"DeleteId"`
}

// labelPicture is a 1x1 transparent PNG, enough for clients to exercise the
// print path.
const labelPicture = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

type server struct {
	scenario *Scenario
	logger   *log.Logger

	mu       sync.Mutex
	sessions map[string]string   // bearer -> user id
	posScans map[string][]string // position id -> accepted codes
	closed   map[string]bool     // document id -> closed via button
}

func newServer(scenario *Scenario, logger *log.Logger) *server {
	return &server{
		scenario: scenario,
		logger:   logger,
		sessions: make(map[string]string),
		posScans: make(map[string][]string),
		closed:   make(map[string]bool),
	}
}

func (s *server) reply(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *server) replyError(w http.ResponseWriter, message string) {
	s.reply(w, map[string]any{"MessageType": "error", "Message": message})
}

func decode(r *http.Request) envelope {
	var env envelope
	_ = json.NewDecoder(r.Body).Decode(&env)
	return env
}

type authedHandler func(w http.ResponseWriter, env envelope)

// withAuth resolves the bearer before the handler runs. An unknown bearer is
// the forced-logout response: an error naming the login form.
func (s *server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env := decode(r)
		s.mu.Lock()
		_, ok := s.sessions[env.Bearer]
		s.mu.Unlock()
		if !ok {
			s.reply(w, map[string]any{
				"MessageType": "error",
				"Message":     "Сессия истекла",
				"Form":        "login",
			})
			return
		}
		next(w, env)
	}
}

func (s *server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users := make([]map[string]any, 0, len(s.scenario.Users))
	for _, u := range s.scenario.Users {
		users = append(users, map[string]any{"Name": u.Name, "Id": u.ID})
	}
	s.reply(w, map[string]any{"Users": users})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	env := decode(r)
	u := s.scenario.user(env.User)
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(env.Password)) != nil {
		s.reply(w, map[string]any{
			"MessageType": "login",
			"Bearer":      "",
			"Message":     "Неверный пользователь или пароль",
		})
		return
	}
	s.issueSession(w, u)
}

func (s *server) handleScanLogin(w http.ResponseWriter, r *http.Request) {
	env := decode(r)
	u := s.scenario.userByBadge(strings.TrimSpace(env.Text))
	if u == nil {
		s.reply(w, map[string]any{
			"MessageType": "login",
			"Bearer":      "",
			"Message":     "Пропуск не распознан",
		})
		return
	}
	s.issueSession(w, u)
}

func (s *server) issueSession(w http.ResponseWriter, u *ScenarioUser) {
	bearer := uuid.NewString()
	s.mu.Lock()
	s.sessions[bearer] = u.ID
	s.mu.Unlock()
	s.logger.Printf("session %s for %s", bearer[:8], u.ID)
	s.reply(w, map[string]any{
		"MessageType": "login",
		"Bearer":      bearer,
		"UserName":    u.Name,
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	env := decode(r)
	s.mu.Lock()
	delete(s.sessions, env.Bearer)
	s.mu.Unlock()
	s.reply(w, map[string]any{})
}

func (s *server) handleDocs(w http.ResponseWriter, env envelope) {
	tasks := make([]map[string]any, 0, len(s.scenario.Tasks))
	for _, t := range s.scenario.Tasks {
		orders := make([]map[string]any, 0, len(t.Orders))
		for _, o := range t.Orders {
			status := o.Status
			if o.DocID != "" && s.isClosed(o.DocID) {
				status = "closed"
			}
			order := map[string]any{"Name": o.Name, "Id": o.ID, "Status": status}
			if o.Comment1 != "" {
				order["Comment 1"] = o.Comment1
			}
			if o.Comment2 != "" {
				order["Comment 2"] = o.Comment2
			}
			orders = append(orders, order)
		}
		tasks = append(tasks, map[string]any{"Name": t.Name, "Id": t.ID, "Orders": orders})
	}
	s.reply(w, map[string]any{
		"Form":            "doclist",
		"Tasks":           tasks,
		"SearchAvailable": "true",
	})
}

func (s *server) handleDoc(w http.ResponseWriter, env envelope) {
	doc := s.scenario.document(env.FormID)
	if doc == nil {
		s.replyError(w, "Документ не найден")
		return
	}
	s.reply(w, s.docPayload(doc))
}

func (s *server) docPayload(doc *ScenarioDocument) map[string]any {
	status := doc.Status
	statusText := doc.StatusText
	if s.isClosed(doc.ID) {
		status = "closed"
		statusText = "Завершен"
	}
	items := make([]map[string]any, 0, len(doc.Items))
	for _, it := range doc.Items {
		itemStatus := it.Status
		if it.PosID != "" && len(s.scansFor(it.PosID)) > 0 {
			itemStatus = "pending"
		}
		items = append(items, map[string]any{"Name": it.Name, "Id": it.ID, "Status": itemStatus})
	}
	payload := map[string]any{
		"Form":       "doc",
		"FormId":     doc.ID,
		"HeaderText": doc.HeaderText,
		"Status":     status,
		"StatusText": statusText,
		"Items":      items,
		"Buttons": []map[string]any{
			{"Id": "close", "Name": "Завершить"},
			{"Id": "label", "Name": "Этикетка"},
		},
	}
	if doc.Background != "" {
		payload["BackgroundColor"] = doc.Background
	}
	return payload
}

func (s *server) handlePos(w http.ResponseWriter, env envelope) {
	doc, pos := s.findPosition(env.FormID)
	if pos == nil {
		s.replyError(w, "Позиция не найдена")
		return
	}
	s.reply(w, s.posPayload(doc, pos))
}

func (s *server) posPayload(doc *ScenarioDocument, pos *ScenarioPosition) map[string]any {
	codes := s.scansFor(pos.ID)
	items := make([]map[string]any, 0, len(codes))
	for i, code := range codes {
		items = append(items, map[string]any{
			"Name": pos.HeaderText,
			"Id":   itemID(pos.ID, i),
			"Text": code,
		})
	}
	return map[string]any{
		"Form":       "pos",
		"FormId":     pos.ID,
		"HeaderText": pos.HeaderText,
		"Items":      items,
		"Buttons":    []map[string]any{{"Id": "clear", "Name": "Очистить"}},
	}
}

func itemID(posID string, i int) string {
	return posID + "-" + string(rune('a'+i))
}

// handleScan serves both the document and position scan endpoints: the code
// must be one a position expects, and a successful scan answers with the
// refreshed form the scan happened on.
func (s *server) handleScan(w http.ResponseWriter, env envelope) {
	switch env.Form {
	case "doc":
		doc := s.scenario.document(env.FormID)
		if doc == nil {
			s.replyError(w, "Документ не найден")
			return
		}
		for i := range doc.Positions {
			pos := &doc.Positions[i]
			if expects(pos, env.Text) {
				s.recordPosScan(pos.ID, env.Text)
				s.reply(w, s.posPayload(doc, pos))
				return
			}
		}
		s.replyError(w, "Код не относится к документу")
	case "pos":
		doc, pos := s.findPosition(env.FormID)
		if pos == nil {
			s.replyError(w, "Позиция не найдена")
			return
		}
		if !expects(pos, env.Text) {
			s.replyError(w, "Неожиданный код для позиции")
			return
		}
		s.recordPosScan(pos.ID, env.Text)
		s.reply(w, s.posPayload(doc, pos))
	default:
		s.replyError(w, "Неизвестная форма")
	}
}

// handleScanList resolves a list-level scan to a document. It answers with a
// bare SelectedId, leaving the follow-up fetch to the client.
func (s *server) handleScanList(w http.ResponseWriter, env envelope) {
	if doc := s.scenario.documentByBarcode(strings.TrimSpace(env.Text)); doc != nil {
		s.reply(w, map[string]any{"SelectedId": doc.ID})
		return
	}
	s.reply(w, map[string]any{})
}

func (s *server) handleButton(w http.ResponseWriter, env envelope) {
	switch {
	case env.Form == "doc" && env.ButtonID == "close" && env.Request == "button":
		// Confirmation round trip before closing.
		s.reply(w, map[string]any{
			"MessageType": "dialog",
			"Form":        "doc",
			"FormId":      env.FormID,
			"DialogText":  "Завершить документ?",
			"Buttons": []map[string]any{
				{"Name": "Да", "Id": "confirm-close"},
				{"Name": "Отмена", "Id": ""},
			},
		})
	case env.Form == "doc" && env.ButtonID == "confirm-close" && env.Request == "dialog":
		doc := s.scenario.document(env.FormID)
		if doc == nil {
			s.replyError(w, "Документ не найден")
			return
		}
		s.mu.Lock()
		s.closed[doc.ID] = true
		s.mu.Unlock()
		s.reply(w, s.docPayload(doc))
	case env.Form == "doc" && env.ButtonID == "label":
		doc := s.scenario.document(env.FormID)
		if doc == nil {
			s.replyError(w, "Документ не найден")
			return
		}
		s.reply(w, map[string]any{
			"MessageType": "print",
			"Picture":     labelPicture,
			"PictureType": "png",
			"PaperWidth":  "58",
			"PaperHeight": "40",
			"PrintCopies": "1",
		})
	case env.Form == "pos" && env.ButtonID == "clear":
		doc, pos := s.findPosition(env.FormID)
		if pos == nil {
			s.replyError(w, "Позиция не найдена")
			return
		}
		s.mu.Lock()
		delete(s.posScans, pos.ID)
		s.mu.Unlock()
		s.reply(w, s.posPayload(doc, pos))
	default:
		s.replyError(w, "Неизвестная кнопка")
	}
}

// handleSelect drills down: an order opens its document, a document item opens
// its position.
func (s *server) handleSelect(w http.ResponseWriter, env envelope) {
	switch env.Form {
	case "doclist":
		for _, t := range s.scenario.Tasks {
			for _, o := range t.Orders {
				if o.ID == env.SelectedID && o.DocID != "" {
					if doc := s.scenario.document(o.DocID); doc != nil {
						s.reply(w, s.docPayload(doc))
						return
					}
				}
			}
		}
		s.replyError(w, "Задание не найдено")
	case "doc":
		doc := s.scenario.document(env.FormID)
		if doc == nil {
			s.replyError(w, "Документ не найден")
			return
		}
		for _, it := range doc.Items {
			if it.ID == env.SelectedID && it.PosID != "" {
				if _, pos := s.findPosition(it.PosID); pos != nil {
					s.reply(w, s.posPayload(doc, pos))
					return
				}
			}
		}
		s.replyError(w, "Позиция не найдена")
	default:
		s.replyError(w, "Неизвестная форма")
	}
}

// handlePosDelete removes one recorded scan, or all of them when DeleteId is
// empty.
func (s *server) handlePosDelete(w http.ResponseWriter, env envelope) {
	doc, pos := s.findPosition(env.FormID)
	if pos == nil {
		s.replyError(w, "Позиция не найдена")
		return
	}
	s.mu.Lock()
	if env.DeleteID == "" {
		delete(s.posScans, pos.ID)
	} else {
		codes := s.posScans[pos.ID]
		kept := codes[:0]
		for i, code := range codes {
			if itemID(pos.ID, i) != env.DeleteID {
				kept = append(kept, code)
			}
		}
		s.posScans[pos.ID] = kept
	}
	s.mu.Unlock()
	s.reply(w, s.posPayload(doc, pos))
}

func (s *server) findPosition(posID string) (*ScenarioDocument, *ScenarioPosition) {
	for i := range s.scenario.Documents {
		doc := &s.scenario.Documents[i]
		for j := range doc.Positions {
			if doc.Positions[j].ID == posID {
				return doc, &doc.Positions[j]
			}
		}
	}
	return nil, nil
}

func expects(pos *ScenarioPosition, code string) bool {
	for _, c := range pos.Expected {
		if c == code {
			return true
		}
	}
	return false
}

func (s *server) recordPosScan(posID, code string) {
	s.mu.Lock()
	s.posScans[posID] = append(s.posScans[posID], code)
	s.mu.Unlock()
}

func (s *server) isClosed(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[docID]
}

func (s *server) scansFor(posID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.posScans[posID]...)
}
