package services

import (
	"context"
	"time"

	"github.com/scanwork/scanwork/internal/protocol"
)

// SessionService owns the current authentication token. Mutation of the
// bearer is exclusive to this service; every authenticated operation reads it
// at call time.
type SessionService interface {
	FetchUsers(ctx context.Context) ([]protocol.User, error)
	Login(ctx context.Context, userID, password string) (LoginResult, error)
	ScanLogin(ctx context.Context, text string) (LoginResult, error)
	// Logout is a fire-and-forget server notification. It swallows failures
	// and does not clear the local bearer; clearing is the caller's call.
	Logout(ctx context.Context)
	ClearLocalSession()
	Bearer() (string, bool)
}

// DocsService exposes the protocol operations screens call. Every method
// performs at most one HTTP attempt, classifies the response, and either
// publishes to a side-channel bus or applies a form update to the state
// store, never both interpretations of one payload.
type DocsService interface {
	FetchDocumentList(ctx context.Context, force, logRequest bool) (OpResult, error)
	FetchDocument(ctx context.Context, formID string, emitNav, logRequest bool) (OpResult, error)
	FetchPosition(ctx context.Context, formID string, emitNav, logRequest bool) (OpResult, error)
	OpenDocumentFromScan(ctx context.Context, scanned string) (OpResult, error)
	ScanAgainstList(ctx context.Context, code string) (OpResult, error)
	ScanAgainstDocument(ctx context.Context, formID, code string) (OpResult, error)
	ScanAgainstPosition(ctx context.Context, formID, code string) (OpResult, error)
	ScanInSelect(ctx context.Context, form protocol.Form, formID, code string) (OpResult, error)
	PressButton(ctx context.Context, form protocol.Form, formID, buttonID, requestKind string) (OpResult, error)
	SelectItem(ctx context.Context, form protocol.Form, formID, selectedID string) (OpResult, error)
	DeletePositionItem(ctx context.Context, formID, itemID string) (OpResult, error)
	Clear()
}

// ScanJournal records scanned codes locally, best effort. Failures never
// surface to the operation that scanned.
type ScanJournal interface {
	RecordScan(ctx context.Context, form protocol.Form, formID, code, outcome string) error
}

// Printer is the external collaborator that rasterizes and prints a label.
// The engine only hands over the request and reports the result upstream.
type Printer interface {
	Print(ctx context.Context, req protocol.PrintRequest) error
}

// BarcodeSource is the external collaborator that turns camera frames or
// hardware trigger events into decoded strings.
type BarcodeSource interface {
	Scans() <-chan string
}

// SettingsStore persists the configured server address between runs.
type SettingsStore interface {
	ServerAddress(ctx context.Context) (string, error)
	SetServerAddress(ctx context.Context, addr string) error
}

// Data structures

// LoginOutcome distinguishes the three-way login result: a dialog pre-empting
// the call is not a failure.
type LoginOutcome int

const (
	LoginFailed LoginOutcome = iota
	LoginSuccess
	LoginDialogShown
)

type LoginResult struct {
	Outcome LoginOutcome
	Bearer  string
	Message string
}

// Outcome of one protocol operation.
type Outcome int

const (
	// OutcomeApplied: a form update was merged into the state store.
	OutcomeApplied Outcome = iota
	// OutcomeDialogShown / OutcomeSelectShown: a side channel pre-empted the
	// normal success path; the state store is untouched.
	OutcomeDialogShown
	OutcomeSelectShown
	// OutcomeIgnored: unrecognized payload, treated as success with no state
	// change.
	OutcomeIgnored
	// OutcomeSkipped: the call was elided locally (same-class request in
	// flight, or resume-refresh suppression).
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDialogShown:
		return "dialog"
	case OutcomeSelectShown:
		return "select"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "skipped"
	}
}

// OpResult is the typed success value of a protocol operation.
type OpResult struct {
	Outcome Outcome
	Form    protocol.Form
	FormID  string
}

// TaskListState is the long-lived view model behind the task list form.
type TaskListState struct {
	Tasks           []protocol.Task
	ActionButtons   []protocol.ActionButton
	BackgroundColor string
	SearchEnabled   bool
	LastUpdatedAt   time.Time
}

// DocumentState is the long-lived view model behind the document form,
// keyed by FormID.
type DocumentState struct {
	FormID          string
	HeaderText      string
	StatusText      string
	Status          string
	StatusColor     string
	BackgroundColor string
	SelectedID      string
	Items           []protocol.DocItem
	ActionButtons   []protocol.ActionButton
}

// PositionState mirrors DocumentState with free-text item codes and
// delete support.
type PositionState struct {
	FormID          string
	HeaderText      string
	StatusText      string
	Status          string
	StatusColor     string
	BackgroundColor string
	SelectedID      string
	Items           []protocol.PosItem
	ActionButtons   []protocol.ActionButton
}
