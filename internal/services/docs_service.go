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

// ScanDocumentMarker must be present in a scanned code for it to be treated
// as "open this document"; anything else is rejected locally without a
// network call.
const ScanDocumentMarker = "NEWDOCUMENT"

// Request classes for in-flight deduplication. A background poll and a
// user-initiated fetch of the same resource share a class and never run
// concurrently; the later caller skips.
const (
	classList   = "doclist"
	classDoc    = "doc"
	classPos    = "pos"
	classScan   = "scan"
	classAction = "action"
)

// inflightGuard tracks which request classes currently have a call on the
// wire.
type inflightGuard struct {
	mu     sync.Mutex
	active map[string]bool
}

func (g *inflightGuard) acquire(class string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = make(map[string]bool)
	}
	if g.active[class] {
		return false
	}
	g.active[class] = true
	return true
}

func (g *inflightGuard) release(class string) {
	g.mu.Lock()
	delete(g.active, class)
	g.mu.Unlock()
}

// DocsServiceImpl implements DocsService: the high-level protocol verbs built
// on transport + classifier + state store.
type DocsServiceImpl struct {
	client   *transport.Client
	session  SessionService
	store    *StateStore
	buses    *Buses
	journal  ScanJournal // optional, best effort
	logger   *log.Logger
	inflight inflightGuard
}

// NewDocsService creates a new docs service.
func NewDocsService(client *transport.Client, session SessionService, store *StateStore, buses *Buses) *DocsServiceImpl {
	return &DocsServiceImpl{
		client:  client,
		session: session,
		store:   store,
		buses:   buses,
	}
}

// SetJournal sets the local scan journal. Optional.
func (s *DocsServiceImpl) SetJournal(journal ScanJournal) {
	s.journal = journal
}

// SetLogger sets the logger for debug output.
func (s *DocsServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Clear wipes the in-memory document and position state.
func (s *DocsServiceImpl) Clear() {
	s.store.Clear()
}

// bearerOrFail reads the session token at call time. Absence is a local
// precondition failure, not a network error.
func (s *DocsServiceImpl) bearerOrFail() (string, error) {
	bearer, ok := s.session.Bearer()
	if !ok {
		return "", ErrNoSession
	}
	return bearer, nil
}

// exchange performs one POST attempt and classifies the response. Server
// errors are published (and forced logout handled) here; print side effects
// are emitted here. Dialog, select, form and ignore classifications are
// returned to the operation, which decides what short-circuits it.
func (s *DocsServiceImpl) exchange(ctx context.Context, path string, req any, expected protocol.Form, logRequest bool) (protocol.Classification, transport.RawResult, error) {
	res, err := s.client.Post(ctx, path, req, logRequest)
	if err != nil {
		return protocol.Classification{}, res, mapTransportError(err)
	}
	c := protocol.Classify(res.Body, expected)
	switch c.Kind {
	case protocol.KindError:
		s.buses.Error.Publish(c.ErrMessage)
		if c.ForcedLogout {
			s.session.ClearLocalSession()
			s.store.Clear()
			s.buses.AppEvent.Publish(AppEventRequireLogin)
		}
		return c, res, &ServerError{Message: c.ErrMessage, ForcedLogout: c.ForcedLogout}
	case protocol.KindPrint:
		s.buses.Print.Publish(*c.Print)
	case protocol.KindIgnore:
		// A failing status with no recognizable payload surfaces as an HTTP
		// error; recognizable payloads win over the status code.
		if !res.OK() {
			return c, res, fmt.Errorf("%w: %d", ErrHTTPStatus, res.StatusCode)
		}
	}
	return c, res, nil
}

// dispatch applies the standard post-classification rules: dialog and select
// pre-empt the success path via their buses, form updates merge into the
// store, everything else is a no-op success.
func (s *DocsServiceImpl) dispatch(c protocol.Classification, res transport.RawResult, emitNav bool) (OpResult, error) {
	switch c.Kind {
	case protocol.KindDialog:
		s.buses.Dialog.Publish(*c.Dialog)
		return OpResult{Outcome: OutcomeDialogShown, Form: c.Dialog.Form, FormID: c.Dialog.FormID}, nil
	case protocol.KindSelect:
		s.buses.Select.Publish(*c.Select)
		return OpResult{Outcome: OutcomeSelectShown, Form: c.Select.Form, FormID: c.Select.FormID}, nil
	case protocol.KindForm, protocol.KindPrint:
		if c.Form == "" {
			// Print with no sibling form data.
			return OpResult{Outcome: OutcomeIgnored}, nil
		}
		if err := s.store.ApplyFormUpdate(c.Form, res.Body, emitNav); err != nil {
			return OpResult{}, err
		}
		return OpResult{Outcome: OutcomeApplied, Form: c.Form, FormID: formID(res.Body)}, nil
	default:
		return OpResult{Outcome: OutcomeIgnored}, nil
	}
}

func formID(raw []byte) string {
	var probe struct {
		FormID string `json:"FormId"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.FormID
}

// FetchDocumentList refreshes the task list. force bypasses the
// resume-refresh suppression window; logRequest gates transport logging so
// background polls stay silent. Navigation is never emitted for list
// refreshes: the list screen is already the one asking.
func (s *DocsServiceImpl) FetchDocumentList(ctx context.Context, force, logRequest bool) (OpResult, error) {
	bearer, err := s.bearerOrFail()
	if err != nil {
		return OpResult{}, err
	}
	if !force && s.store.ShouldSkipResumeRefresh() {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	if !s.inflight.acquire(classList) {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.inflight.release(classList)

	c, res, err := s.exchange(ctx, "/docs", protocol.NewListRequest(bearer), protocol.FormDocList, logRequest)
	if err != nil {
		return OpResult{}, err
	}
	return s.dispatch(c, res, false)
}

// FetchDocument refreshes one document form.
func (s *DocsServiceImpl) FetchDocument(ctx context.Context, formID string, emitNav, logRequest bool) (OpResult, error) {
	bearer, err := s.bearerOrFail()
	if err != nil {
		return OpResult{}, err
	}
	if strings.TrimSpace(formID) == "" {
		return OpResult{}, fmt.Errorf("%w: empty form id", ErrInvalidInput)
	}
	if !s.inflight.acquire(classDoc) {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.inflight.release(classDoc)

	c, res, err := s.exchange(ctx, "/doc", protocol.NewFormRequest(bearer, protocol.FormDoc, formID), protocol.FormDoc, logRequest)
	if err != nil {
		return OpResult{}, err
	}
	return s.dispatch(c, res, emitNav)
}

// FetchPosition refreshes one position form.
func (s *DocsServiceImpl) FetchPosition(ctx context.Context, formID string, emitNav, logRequest bool) (OpResult, error) {
	bearer, err := s.bearerOrFail()
	if err != nil {
		return OpResult{}, err
	}
	if strings.TrimSpace(formID) == "" {
		return OpResult{}, fmt.Errorf("%w: empty form id", ErrInvalidInput)
	}
	if !s.inflight.acquire(classPos) {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.inflight.release(classPos)

	c, res, err := s.exchange(ctx, "/pos", protocol.NewFormRequest(bearer, protocol.FormPos, formID), protocol.FormPos, logRequest)
	if err != nil {
		return OpResult{}, err
	}
	return s.dispatch(c, res, emitNav)
}

// OpenDocumentFromScan opens the document a scanned code points at. The code
// must contain the document marker; otherwise it is rejected locally.
func (s *DocsServiceImpl) OpenDocumentFromScan(ctx context.Context, scanned string) (OpResult, error) {
	if _, err := s.bearerOrFail(); err != nil {
		return OpResult{}, err
	}
	if !strings.Contains(scanned, ScanDocumentMarker) {
		s.recordScan(ctx, protocol.FormDoc, "", scanned, "rejected")
		return OpResult{}, fmt.Errorf("%w: %q", ErrInvalidScanFormat, scanned)
	}
	res, err := s.FetchDocument(ctx, scanned, true, true)
	s.recordScan(ctx, protocol.FormDoc, scanned, scanned, outcomeLabel(res, err))
	return res, err
}

// ScanAgainstList resolves a code scanned on the task list. The server may
// answer with a document form directly, or with just a SelectedId to fetch,
// or with nothing recognizable, which means the code matched no document.
func (s *DocsServiceImpl) ScanAgainstList(ctx context.Context, code string) (OpResult, error) {
	bearer, err := s.bearerOrFail()
	if err != nil {
		return OpResult{}, err
	}
	if !s.inflight.acquire(classScan) {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.inflight.release(classScan)

	c, res, err := s.exchange(ctx, "/scanlist", protocol.NewScanRequest(bearer, protocol.FormDocList, "", code), "", true)
	if err != nil {
		s.recordScan(ctx, protocol.FormDocList, "", code, "error")
		return OpResult{}, err
	}
	if c.Kind == protocol.KindIgnore {
		var probe struct {
			SelectedID string `json:"SelectedId"`
		}
		_ = json.Unmarshal(res.Body, &probe)
		if strings.TrimSpace(probe.SelectedID) == "" {
			s.recordScan(ctx, protocol.FormDocList, "", code, "not-found")
			return OpResult{}, ErrDocumentNotFound
		}
		out, err := s.FetchDocument(ctx, probe.SelectedID, true, true)
		s.recordScan(ctx, protocol.FormDocList, probe.SelectedID, code, outcomeLabel(out, err))
		return out, err
	}
	out, err := s.dispatch(c, res, true)
	s.recordScan(ctx, protocol.FormDocList, out.FormID, code, outcomeLabel(out, err))
	return out, err
}

// ScanAgainstDocument submits a code scanned while a document is open.
func (s *DocsServiceImpl) ScanAgainstDocument(ctx context.Context, formID, code string) (OpResult, error) {
	out, err := s.scanForm(ctx, "/scan", protocol.FormDoc, formID, code)
	s.recordScan(ctx, protocol.FormDoc, formID, code, outcomeLabel(out, err))
	return out, err
}

// ScanAgainstPosition submits a code scanned while a position is open.
func (s *DocsServiceImpl) ScanAgainstPosition(ctx context.Context, formID, code string) (OpResult, error) {
	out, err := s.scanForm(ctx, "/scanone", protocol.FormPos, formID, code)
	s.recordScan(ctx, protocol.FormPos, formID, code, outcomeLabel(out, err))
	return out, err
}

func (s *DocsServiceImpl) scanForm(ctx context.Context, path string, form protocol.Form, formID, code string) (OpResult, error) {
	bearer, err := s.bearerOrFail()
	if err != nil {
		return OpResult{}, err
	}
	if strings.TrimSpace(formID) == "" {
		return OpResult{}, fmt.Errorf("%w: empty form id", ErrInvalidInput)
	}
	if !s.inflight.acquire(classScan) {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.inflight.release(classScan)

	c, res, err := s.exchange(ctx, path, protocol.NewScanRequest(bearer, form, formID, code), form, true)
	if err != nil {
		return OpResult{}, err
	}
	// The screen that scanned is already visible; its refresh is silent.
	return s.dispatch(c, res, false)
}

// ScanInSelect submits a code scanned while a server-driven select page is
// open. form and formID identify the select page the server put up.
func (s *DocsServiceImpl) ScanInSelect(ctx context.Context, form protocol.Form, formID, code string) (OpResult, error) {
	bearer, err := s.bearerOrFail()
	if err != nil {
		return OpResult{}, err
	}
	if !s.inflight.acquire(classScan) {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.inflight.release(classScan)

	c, res, err := s.exchange(ctx, "/scan", protocol.NewScanRequest(bearer, form, formID, code), form, true)
	if err != nil {
		return OpResult{}, err
	}
	// Leaving the select page for a form means the form must be (re)shown.
	return s.dispatch(c, res, true)
}

// PressButton reports a button press. requestKind is "dialog" when
// acknowledging a server-driven dialog button and "button" for form action
// buttons; blank defaults to "button".
func (s *DocsServiceImpl) PressButton(ctx context.Context, form protocol.Form, formID, buttonID, requestKind string) (OpResult, error) {
	bearer, err := s.bearerOrFail()
	if err != nil {
		return OpResult{}, err
	}
	if strings.TrimSpace(buttonID) == "" {
		// Blank-id buttons are local-only close actions; reaching here is a
		// caller bug.
		return OpResult{}, fmt.Errorf("%w: empty button id", ErrInvalidInput)
	}
	if requestKind == "" {
		requestKind = protocol.RequestButton
	}
	if !s.inflight.acquire(classAction) {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.inflight.release(classAction)

	c, res, err := s.exchange(ctx, "/button", protocol.NewButtonRequest(bearer, form, formID, buttonID, requestKind), form, true)
	if err != nil {
		return OpResult{}, err
	}
	return s.dispatch(c, res, true)
}

// SelectItem reports the option picked on a select page.
func (s *DocsServiceImpl) SelectItem(ctx context.Context, form protocol.Form, formID, selectedID string) (OpResult, error) {
	bearer, err := s.bearerOrFail()
	if err != nil {
		return OpResult{}, err
	}
	if strings.TrimSpace(selectedID) == "" {
		return OpResult{}, fmt.Errorf("%w: empty selected id", ErrInvalidInput)
	}
	if !s.inflight.acquire(classAction) {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.inflight.release(classAction)

	c, res, err := s.exchange(ctx, "/select", protocol.NewSelectItemRequest(bearer, form, formID, selectedID), form, true)
	if err != nil {
		return OpResult{}, err
	}
	return s.dispatch(c, res, true)
}

// DeletePositionItem removes one position line item, or every item when
// itemID is "*".
func (s *DocsServiceImpl) DeletePositionItem(ctx context.Context, formID, itemID string) (OpResult, error) {
	bearer, err := s.bearerOrFail()
	if err != nil {
		return OpResult{}, err
	}
	if strings.TrimSpace(formID) == "" {
		return OpResult{}, fmt.Errorf("%w: empty form id", ErrInvalidInput)
	}
	deleteID := itemID
	if itemID == "*" {
		deleteID = ""
	}
	if !s.inflight.acquire(classAction) {
		return OpResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.inflight.release(classAction)

	c, res, err := s.exchange(ctx, "/posdelete", protocol.NewDeleteRequest(bearer, formID, deleteID), protocol.FormPos, true)
	if err != nil {
		return OpResult{}, err
	}
	return s.dispatch(c, res, false)
}

// recordScan writes to the local scan journal, best effort.
func (s *DocsServiceImpl) recordScan(ctx context.Context, form protocol.Form, formID, code, outcome string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordScan(ctx, form, formID, code, outcome); err != nil && s.logger != nil {
		s.logger.Printf("scan journal write failed: %v", err)
	}
}

func outcomeLabel(res OpResult, err error) string {
	if err != nil {
		return "error"
	}
	return res.Outcome.String()
}
