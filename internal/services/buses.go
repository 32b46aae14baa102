package services

import (
	"github.com/scanwork/scanwork/internal/bus"
	"github.com/scanwork/scanwork/internal/protocol"
)

// AppEvent is an application-level control signal.
type AppEvent int

const (
	// AppEventRequireLogin: the server invalidated the session; the UI must
	// navigate to the login form.
	AppEventRequireLogin AppEvent = iota
)

// NavigationTarget tells the UI which form to show. Emitted, never stored.
type NavigationTarget struct {
	Form   protocol.Form
	FormID string
}

// Buses groups the side-channel buses the engine publishes to. One instance
// is built per application context and passed by reference; each bus is
// single-slot conflating, so subscribers only ever see the newest value.
type Buses struct {
	Dialog     *bus.Conflating[protocol.DialogRequest]
	Print      *bus.Conflating[protocol.PrintRequest]
	Select     *bus.Conflating[protocol.SelectRequest]
	Error      *bus.Conflating[string]
	AppEvent   *bus.Conflating[AppEvent]
	Navigation *bus.Conflating[NavigationTarget]
}

func NewBuses() *Buses {
	return &Buses{
		Dialog:     bus.New[protocol.DialogRequest](),
		Print:      bus.New[protocol.PrintRequest](),
		Select:     bus.New[protocol.SelectRequest](),
		Error:      bus.New[string](),
		AppEvent:   bus.New[AppEvent](),
		Navigation: bus.New[NavigationTarget](),
	}
}
