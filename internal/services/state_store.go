package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/scanwork/scanwork/internal/bus"
	"github.com/scanwork/scanwork/internal/protocol"
)

// StateStore is the single source of truth for the three long-lived view
// models: task list, document and position. All mutation funnels through
// ApplyFormUpdate; screens read snapshots and subscribe to change signals.
type StateStore struct {
	mu   sync.RWMutex
	list *TaskListState
	doc  *DocumentState
	pos  *PositionState

	nav *bus.Conflating[NavigationTarget]

	listChanged *bus.Conflating[struct{}]
	docChanged  *bus.Conflating[struct{}]
	posChanged  *bus.Conflating[struct{}]

	now func() time.Time
}

// NewStateStore builds a store publishing navigation events to the given
// buses.
func NewStateStore(buses *Buses) *StateStore {
	return &StateStore{
		nav:         buses.Navigation,
		listChanged: bus.New[struct{}](),
		docChanged:  bus.New[struct{}](),
		posChanged:  bus.New[struct{}](),
		now:         time.Now,
	}
}

// ApplyFormUpdate decodes raw as the claimed form kind and merges it in.
// A payload that fails to decode leaves the store unchanged and returns
// ErrMalformedResponse. Navigation is emitted only when emitNav is set, so
// silent background refreshes never disturb the visible screen.
func (s *StateStore) ApplyFormUpdate(form protocol.Form, raw []byte, emitNav bool) error {
	switch form {
	case protocol.FormDocList, protocol.FormTasks:
		var resp protocol.ListResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("%w: doclist: %v", ErrMalformedResponse, err)
		}
		s.applyList(&resp, emitNav)
	case protocol.FormDoc:
		var resp protocol.DocResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("%w: doc: %v", ErrMalformedResponse, err)
		}
		s.applyDoc(&resp, emitNav)
	case protocol.FormPos:
		var resp protocol.PosResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("%w: pos: %v", ErrMalformedResponse, err)
		}
		s.applyPos(&resp, emitNav)
	default:
		return fmt.Errorf("%w: unknown form %q", ErrMalformedResponse, form)
	}
	return nil
}

func (s *StateStore) applyList(resp *protocol.ListResponse, emitNav bool) {
	s.mu.Lock()
	next := &TaskListState{
		Tasks:         resp.Tasks,
		ActionButtons: resp.Buttons,
		SearchEnabled: equalsTrue(resp.SearchAvailable),
		LastUpdatedAt: s.now(),
	}
	// The list is a singleton form: keep the previous background when the
	// server omits or garbles the color on a refresh.
	if norm, ok := protocol.NormalizeHexColor(resp.BackgroundColor); ok {
		next.BackgroundColor = norm
	} else if s.list != nil {
		next.BackgroundColor = s.list.BackgroundColor
	}
	s.list = next
	s.mu.Unlock()

	s.listChanged.Publish(struct{}{})
	if emitNav {
		s.nav.Publish(NavigationTarget{Form: protocol.FormDocList})
	}
}

func (s *StateStore) applyDoc(resp *protocol.DocResponse, emitNav bool) {
	s.mu.Lock()
	next := &DocumentState{
		FormID:        resp.FormID,
		HeaderText:    resp.HeaderText,
		StatusText:    resp.StatusText,
		Status:        resp.Status,
		StatusColor:   resp.StatusColor,
		SelectedID:    resp.SelectedID,
		Items:         resp.Items,
		ActionButtons: resp.Buttons,
	}
	var prevID, prevBg string
	if s.doc != nil {
		prevID, prevBg = s.doc.FormID, s.doc.BackgroundColor
	}
	next.BackgroundColor = mergeBackground(prevID, prevBg, resp.FormID, resp.BackgroundColor)
	s.doc = next
	s.mu.Unlock()

	s.docChanged.Publish(struct{}{})
	if emitNav {
		s.nav.Publish(NavigationTarget{Form: protocol.FormDoc, FormID: resp.FormID})
	}
}

func (s *StateStore) applyPos(resp *protocol.PosResponse, emitNav bool) {
	s.mu.Lock()
	next := &PositionState{
		FormID:        resp.FormID,
		HeaderText:    resp.HeaderText,
		StatusText:    resp.StatusText,
		Status:        resp.Status,
		StatusColor:   resp.StatusColor,
		SelectedID:    resp.SelectedID,
		Items:         resp.Items,
		ActionButtons: resp.Buttons,
	}
	var prevID, prevBg string
	if s.pos != nil {
		prevID, prevBg = s.pos.FormID, s.pos.BackgroundColor
	}
	next.BackgroundColor = mergeBackground(prevID, prevBg, resp.FormID, resp.BackgroundColor)
	s.pos = next
	s.mu.Unlock()

	s.posChanged.Publish(struct{}{})
	if emitNav {
		s.nav.Publish(NavigationTarget{Form: protocol.FormPos, FormID: resp.FormID})
	}
}

// mergeBackground keeps a same-document refresh from flickering the
// background to the default when the server omits the color: the previous
// color carries over only when the stored state shares the formId.
func mergeBackground(prevFormID, prevBg, formID, incoming string) string {
	if norm, ok := protocol.NormalizeHexColor(incoming); ok {
		return norm
	}
	if prevFormID != "" && prevFormID == formID {
		return prevBg
	}
	return ""
}

func equalsTrue(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// TaskList returns a snapshot of the current task list state.
func (s *StateStore) TaskList() (TaskListState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.list == nil {
		return TaskListState{}, false
	}
	return *s.list, true
}

// Document returns a snapshot of the current document state.
func (s *StateStore) Document() (DocumentState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return DocumentState{}, false
	}
	return *s.doc, true
}

// Position returns a snapshot of the current position state.
func (s *StateStore) Position() (PositionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pos == nil {
		return PositionState{}, false
	}
	return *s.pos, true
}

// ListChanges, DocChanges and PosChanges signal that the corresponding slot
// was replaced. Conflated: a slow subscriber sees one signal, not a backlog.
func (s *StateStore) ListChanges() <-chan struct{} { return s.listChanged.C() }
func (s *StateStore) DocChanges() <-chan struct{}  { return s.docChanged.C() }
func (s *StateStore) PosChanges() <-chan struct{}  { return s.posChanged.C() }

// ShouldSkipResumeRefresh reports whether a doclist update landed within the
// resume-refresh suppression window, so a screen regaining foreground right
// after a fresh load can skip its redundant refresh.
func (s *StateStore) ShouldSkipResumeRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.list == nil {
		return false
	}
	return s.now().Sub(s.list.LastUpdatedAt) < ResumeRefreshWindow
}

// Clear wipes the document and position slots. Used on forced logout.
func (s *StateStore) Clear() {
	s.mu.Lock()
	s.doc = nil
	s.pos = nil
	s.mu.Unlock()
	s.docChanged.Publish(struct{}{})
	s.posChanged.Publish(struct{}{})
}
