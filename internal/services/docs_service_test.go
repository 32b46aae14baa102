package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwork/scanwork/internal/protocol"
	"github.com/scanwork/scanwork/internal/transport"
)

type docsFixture struct {
	srv     *scriptedServer
	docs    *DocsServiceImpl
	session *SessionServiceImpl
	store   *StateStore
	buses   *Buses
}

func newDocsFixture(t *testing.T) *docsFixture {
	t.Helper()
	srv := newScriptedServer(t)
	buses := NewBuses()
	store := NewStateStore(buses)
	client := transport.NewClient(srv.srv.URL)
	session := NewSessionService(client, buses, store)
	session.setBearer("tok-test")
	return &docsFixture{
		srv:     srv,
		docs:    NewDocsService(client, session, store, buses),
		session: session,
		store:   store,
		buses:   buses,
	}
}

func TestDocsService_FetchDocumentListApplies(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/docs", `{"Form":"doclist","Tasks":[{"Name":"Приемка","Id":"t1","Orders":[{"Name":"Заказ 1","Id":"o1","Status":"pending"}]}]}`)

	res, err := f.docs.FetchDocumentList(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, protocol.FormDocList, res.Form)

	list, ok := f.store.TaskList()
	require.True(t, ok)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "Приемка", list.Tasks[0].Name)

	_, navEmitted := f.buses.Navigation.TryReceive()
	assert.False(t, navEmitted)
}

func TestDocsService_NoSessionNoCall(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/docs", `{"Form":"doclist"}`)
	f.session.ClearLocalSession()

	_, err := f.docs.FetchDocumentList(context.Background(), true, true)
	require.ErrorIs(t, err, ErrNoSession)
	assert.EqualValues(t, 0, f.srv.calls("/docs"))
}

func TestDocsService_ResumeSuppression(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/docs", `{"Form":"doclist"}`)

	res, err := f.docs.FetchDocumentList(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	// Within the window an unforced refresh is elided; a forced one is not.
	res, err = f.docs.FetchDocumentList(context.Background(), false, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.EqualValues(t, 1, f.srv.calls("/docs"))

	res, err = f.docs.FetchDocumentList(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.EqualValues(t, 2, f.srv.calls("/docs"))
}

func TestDocsService_DialogPreemptsFormUpdate(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/doc", `{"Form":"doc","FormId":"D1","HeaderText":"base"}`)

	_, err := f.docs.FetchDocument(context.Background(), "D1", true, true)
	require.NoError(t, err)
	_, _ = f.buses.Navigation.TryReceive()

	f.srv.respond("/doc", `{"MessageType":"dialog","DialogHeader":"Внимание","DialogText":"Паллета закрыта","Buttons":[{"Name":"Ок","Id":"ok1"}]}`)
	res, err := f.docs.FetchDocument(context.Background(), "D1", true, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDialogShown, res.Outcome)

	d, ok := f.buses.Dialog.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "Паллета закрыта", d.Text)

	// The document state is untouched and no navigation was emitted.
	doc, ok := f.store.Document()
	require.True(t, ok)
	assert.Equal(t, "base", doc.HeaderText)
	_, navEmitted := f.buses.Navigation.TryReceive()
	assert.False(t, navEmitted)
}

func TestDocsService_SelectPreempts(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/scan", `{"MessageType":"select","Form":"doc","FormId":"D1","HeaderText":"Выберите ячейку","Items":[{"Name":"A-01","Id":"c1"},{"Name":"","Id":""}]}`)

	res, err := f.docs.ScanAgainstDocument(context.Background(), "D1", "4607001")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSelectShown, res.Outcome)

	sel, ok := f.buses.Select.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "Выберите ячейку", sel.HeaderText)
	require.Len(t, sel.Items, 1, "blank-id options are dropped")
	assert.Equal(t, "c1", sel.Items[0].ID)
}

func TestDocsService_ForcedLogout(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/doc", `{"Form":"doc","FormId":"D1"}`)
	_, err := f.docs.FetchDocument(context.Background(), "D1", false, true)
	require.NoError(t, err)

	f.srv.respond("/doc", `{"MessageType":"error","Message":"Сессия истекла","Form":"login"}`)
	_, err = f.docs.FetchDocument(context.Background(), "D1", false, true)
	require.Error(t, err)

	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Сессия истекла", se.Message)
	assert.True(t, se.ForcedLogout)

	msg, ok := f.buses.Error.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "Сессия истекла", msg)

	ev, ok := f.buses.AppEvent.TryReceive()
	require.True(t, ok)
	assert.Equal(t, AppEventRequireLogin, ev)
	_, again := f.buses.AppEvent.TryReceive()
	assert.False(t, again, "exactly one RequireLogin per forced logout")

	_, hasBearer := f.session.Bearer()
	assert.False(t, hasBearer)
	_, hasDoc := f.store.Document()
	assert.False(t, hasDoc, "forced logout wipes document state")
}

func TestDocsService_ErrorWithoutLoginKeepsSession(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/doc", `{"MessageType":"error","Message":"Недостаточно остатка"}`)

	_, err := f.docs.FetchDocument(context.Background(), "D1", false, true)
	require.Error(t, err)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.ForcedLogout)

	_, ok := f.session.Bearer()
	assert.True(t, ok)
	_, ev := f.buses.AppEvent.TryReceive()
	assert.False(t, ev)
}

func TestDocsService_ErrorDefaultMessage(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/doc", `{"MessageType":"error"}`)

	_, err := f.docs.FetchDocument(context.Background(), "D1", false, true)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Ошибка", se.Message)
}

func TestDocsService_ErrorPayloadBeatsHTTPStatus(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respondStatus("/doc", http.StatusInternalServerError, `{"MessageType":"error","Message":"Документ заблокирован"}`)

	_, err := f.docs.FetchDocument(context.Background(), "D1", false, true)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Документ заблокирован", se.Message)
	assert.NotErrorIs(t, err, ErrHTTPStatus)
}

func TestDocsService_UnrecognizableFailureIsHTTPError(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respondStatus("/doc", http.StatusServiceUnavailable, `<html>nginx</html>`)

	_, err := f.docs.FetchDocument(context.Background(), "D1", false, true)
	require.ErrorIs(t, err, ErrHTTPStatus)
}

func TestDocsService_PrintWithoutPictureIgnored(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/doc", `{"Form":"doc","FormId":"D1","HeaderText":"base"}`)
	_, err := f.docs.FetchDocument(context.Background(), "D1", false, true)
	require.NoError(t, err)

	// A print with no image is a no-op even when a Form field rides along.
	f.srv.respond("/doc", `{"MessageType":"print","Form":"doc","FormId":"D1","HeaderText":"ghost"}`)
	res, err := f.docs.FetchDocument(context.Background(), "D1", false, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	_, printed := f.buses.Print.TryReceive()
	assert.False(t, printed)
	doc, _ := f.store.Document()
	assert.Equal(t, "base", doc.HeaderText)
}

func TestDocsService_PrintPublishes(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/scan", `{"MessageType":"print","Picture":"aGVsbG8=","PrintCopies":"2"}`)

	res, err := f.docs.ScanAgainstDocument(context.Background(), "D1", "4607001")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome, "print with no sibling form data changes no state")

	pr, ok := f.buses.Print.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "aGVsbG8=", pr.ImageBase64)
	assert.Equal(t, "bmp", pr.ImageFormat)
	assert.Equal(t, 2, pr.Copies)
	assert.InDelta(t, 50.0, pr.PaperWidthMm, 0.001)
	assert.InDelta(t, 30.0, pr.PaperHeightMm, 0.001)
}

func TestDocsService_ScanRefreshIsSilent(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/scan", `{"Form":"doc","FormId":"D1","HeaderText":"после скана"}`)

	res, err := f.docs.ScanAgainstDocument(context.Background(), "D1", "4607001")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	doc, ok := f.store.Document()
	require.True(t, ok)
	assert.Equal(t, "после скана", doc.HeaderText)
	_, navEmitted := f.buses.Navigation.TryReceive()
	assert.False(t, navEmitted, "the scanning screen is already visible")
}

func TestDocsService_OpenDocumentFromScanRejectsLocally(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/doc", `{"Form":"doc","FormId":"X"}`)

	journal := &memJournal{}
	f.docs.SetJournal(journal)

	_, err := f.docs.OpenDocumentFromScan(context.Background(), "4607001234567")
	require.ErrorIs(t, err, ErrInvalidScanFormat)
	assert.EqualValues(t, 0, f.srv.calls("/doc"))

	entries := journal.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "rejected", entries[0].outcome)
}

func TestDocsService_OpenDocumentFromScanAccepted(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/doc", `{"Form":"doc","FormId":"NEWDOCUMENT-42","HeaderText":"Паллета 42"}`)

	res, err := f.docs.OpenDocumentFromScan(context.Background(), "NEWDOCUMENT-42")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	nav, ok := f.buses.Navigation.TryReceive()
	require.True(t, ok)
	assert.Equal(t, protocol.FormDoc, nav.Form)
	assert.Equal(t, "NEWDOCUMENT-42", nav.FormID)
}

func TestDocsService_ScanAgainstListSelectedIDChain(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/scanlist", `{"SelectedId":"D7"}`)
	f.srv.respond("/doc", `{"Form":"doc","FormId":"D7","HeaderText":"Найден"}`)

	res, err := f.docs.ScanAgainstList(context.Background(), "4607001")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.EqualValues(t, 1, f.srv.calls("/doc"))

	doc, ok := f.store.Document()
	require.True(t, ok)
	assert.Equal(t, "D7", doc.FormID)

	nav, ok := f.buses.Navigation.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "D7", nav.FormID)
}

func TestDocsService_ScanAgainstListDirectForm(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/scanlist", `{"Form":"doc","FormId":"D8","HeaderText":"Прямой ответ"}`)

	res, err := f.docs.ScanAgainstList(context.Background(), "4607001")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "D8", res.FormID)
	assert.EqualValues(t, 0, f.srv.calls("/doc"), "no second round trip when the form arrives inline")
}

func TestDocsService_ScanAgainstListNotFound(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/scanlist", `{}`)

	_, err := f.docs.ScanAgainstList(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDocsService_DeletePositionItem(t *testing.T) {
	var mu sync.Mutex
	var captured []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		captured = append(captured, body)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"Form":"pos","FormId":"P1"}`))
	}))
	defer srv.Close()

	buses := NewBuses()
	store := NewStateStore(buses)
	client := transport.NewClient(srv.URL)
	session := NewSessionService(client, buses, store)
	session.setBearer("tok")
	docs := NewDocsService(client, session, store, buses)

	_, err := docs.DeletePositionItem(context.Background(), "P1", "i9")
	require.NoError(t, err)
	_, err = docs.DeletePositionItem(context.Background(), "P1", "*")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, captured, 2)
	assert.Equal(t, "i9", captured[0]["DeleteId"])
	assert.Equal(t, "", captured[1]["DeleteId"], "the delete-all wildcard maps to an empty DeleteId")
	assert.Equal(t, "delete", captured[0]["Request"])
}

func TestDocsService_ScanInSelectNavigates(t *testing.T) {
	f := newDocsFixture(t)
	// Scanning on a select page resolves it to a form, which must be shown.
	f.srv.respond("/scan", `{"Form":"pos","FormId":"P3","HeaderText":"Ячейка A-01"}`)

	res, err := f.docs.ScanInSelect(context.Background(), protocol.FormPos, "P3", "4607001")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	nav, ok := f.buses.Navigation.TryReceive()
	require.True(t, ok)
	assert.Equal(t, protocol.FormPos, nav.Form)
	assert.Equal(t, "P3", nav.FormID)
}

func TestDocsService_PressButtonValidation(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/button", `{"Form":"doc","FormId":"D1"}`)

	_, err := f.docs.PressButton(context.Background(), protocol.FormDoc, "D1", "", "")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.EqualValues(t, 0, f.srv.calls("/button"))

	res, err := f.docs.PressButton(context.Background(), protocol.FormDoc, "D1", "b1", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
}

func TestDocsService_InFlightDeduplication(t *testing.T) {
	f := newDocsFixture(t)
	f.srv.respond("/doc", `{"Form":"doc","FormId":"D1"}`)

	// Simulate a same-class request already on the wire.
	require.True(t, f.docs.inflight.acquire(classDoc))
	res, err := f.docs.FetchDocument(context.Background(), "D1", false, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.EqualValues(t, 0, f.srv.calls("/doc"))
	f.docs.inflight.release(classDoc)

	res, err = f.docs.FetchDocument(context.Background(), "D1", false, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
}

func TestDocsService_TransportFailureMapped(t *testing.T) {
	buses := NewBuses()
	store := NewStateStore(buses)
	// A server that is already gone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := transport.NewClient(url)
	session := NewSessionService(client, buses, store)
	session.setBearer("tok")
	docs := NewDocsService(client, session, store, buses)

	_, err := docs.FetchDocumentList(context.Background(), true, true)
	require.ErrorIs(t, err, ErrNetworkUnavailable)
}

// memJournal is an in-memory ScanJournal for tests.
type memJournal struct {
	mu   sync.Mutex
	recs []journalEntry
}

type journalEntry struct {
	form    protocol.Form
	formID  string
	code    string
	outcome string
}

func (j *memJournal) RecordScan(_ context.Context, form protocol.Form, formID, code, outcome string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, journalEntry{form: form, formID: formID, code: code, outcome: outcome})
	return nil
}

func (j *memJournal) entries() []journalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]journalEntry, len(j.recs))
	copy(out, j.recs)
	return out
}
