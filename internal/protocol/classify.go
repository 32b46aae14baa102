package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind is the mutually-exclusive interpretation of one server response.
type Kind int

const (
	// KindIgnore means the payload carries nothing actionable. Unrecognized
	// shapes resolve here, never to an error.
	KindIgnore Kind = iota
	KindDialog
	KindPrint
	KindSelect
	KindError
	KindForm
)

func (k Kind) String() string {
	switch k {
	case KindDialog:
		return "dialog"
	case KindPrint:
		return "print"
	case KindSelect:
		return "select"
	case KindError:
		return "error"
	case KindForm:
		return "form"
	default:
		return "ignore"
	}
}

// Classification is the result of inspecting one raw response. Exactly one of
// the payload fields matching Kind is populated.
type Classification struct {
	Kind Kind

	Dialog *DialogRequest
	Print  *PrintRequest
	Select *SelectRequest

	// KindError fields. ForcedLogout is set when the error names the login
	// form: the session must be invalidated and RequireLogin emitted.
	ErrMessage   string
	ForcedLogout bool

	// KindForm routing target: FormDoc, FormPos or FormDocList. Also set for
	// KindPrint when the payload carries an explicit recognizable Form:
	// print is a side effect and must not swallow sibling form data. In
	// practice print payloads carry no form fields, so this stays empty.
	Form Form
}

// ErrMessageDefault is used when an error response omits its Message field.
const ErrMessageDefault = "Ошибка"

// probe reads just enough of a response to classify it. Every field is
// optional; true discriminants are MessageType and Form.
type probe struct {
	MessageType string `json:"MessageType"`
	Form        string `json:"Form"`
	FormID      string `json:"FormId"`
	Message     string `json:"Message"`

	DialogHeader string `json:"DialogHeader"`
	DialogText   string `json:"DialogText"`

	SelectedID      string `json:"SelectedId"`
	HeaderText      string `json:"HeaderText"`
	StatusText      string `json:"StatusText"`
	Status          string `json:"Status"`
	StatusColor     string `json:"StatusColor"`
	BackgroundColor string `json:"BackgroundColor"`
	SearchAvailable string `json:"SearchAvailable"`

	Picture     string `json:"Picture"`
	PictureType string `json:"PictureType"`
	PaperWidth  string `json:"PaperWidth"`
	PaperHeight string `json:"PaperHeight"`
	PrintCopies string `json:"PrintCopies"`

	Items   json.RawMessage `json:"Items"`
	Buttons json.RawMessage `json:"Buttons"`
}

// Classify decides the single interpretation of a raw response body.
// Precedence, first match wins: dialog, print, select, error, form routing,
// ignore. The order prevents double interpretation: a print payload has no
// header or items and must not be read as a blank document.
//
// expected is the form the calling operation was refreshing; it routes
// responses from endpoints that omit Form on success.
func Classify(raw []byte, expected Form) Classification {
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return Classification{Kind: KindIgnore}
	}

	mt := strings.ToLower(strings.TrimSpace(p.MessageType))
	switch mt {
	case "dialog":
		return Classification{Kind: KindDialog, Dialog: p.dialog()}
	case "print":
		pr := p.print()
		if pr == nil {
			// Print without an image payload is a no-op, and any sibling
			// Form field must not be treated as a form update either.
			return Classification{Kind: KindIgnore}
		}
		return Classification{Kind: KindPrint, Print: pr, Form: routeForm(p.Form, "")}
	case "select":
		return Classification{Kind: KindSelect, Select: p.sel()}
	case "error":
		msg := p.Message
		if msg == "" {
			msg = ErrMessageDefault
		}
		return Classification{
			Kind:         KindError,
			ErrMessage:   msg,
			ForcedLogout: strings.EqualFold(p.Form, string(FormLogin)),
		}
	}

	if form := routeForm(p.Form, expected); form != "" {
		return Classification{Kind: KindForm, Form: form}
	}
	return Classification{Kind: KindIgnore}
}

// routeForm resolves the form kind from the payload's Form field, falling
// back to the operation's expected form when the server omits it on success.
func routeForm(raw string, expected Form) Form {
	form := strings.ToLower(strings.TrimSpace(raw))
	if form == "" {
		form = strings.ToLower(strings.TrimSpace(string(expected)))
	}
	switch form {
	case string(FormDoc):
		return FormDoc
	case string(FormPos):
		return FormPos
	case string(FormDocList), string(FormTasks):
		return FormDocList
	}
	return ""
}

func (p *probe) dialog() *DialogRequest {
	d := &DialogRequest{
		Form:            Form(strings.ToLower(p.Form)),
		FormID:          p.FormID,
		Header:          p.DialogHeader,
		Text:            p.DialogText,
		Status:          p.Status,
		StatusColor:     p.StatusColor,
		BackgroundColor: p.BackgroundColor,
	}
	if len(p.Buttons) > 0 {
		// Blank-id buttons stay: they close the dialog locally.
		_ = json.Unmarshal(p.Buttons, &d.Buttons)
	}
	return d
}

func (p *probe) print() *PrintRequest {
	if strings.TrimSpace(p.Picture) == "" {
		return nil
	}
	format := p.PictureType
	if format == "" {
		format = "bmp"
	}
	width := parseFloatDefault(p.PaperWidth, 50)
	height := parseFloatDefault(p.PaperHeight, 30)
	copies := parseIntDefault(p.PrintCopies, 1)
	if copies < 1 {
		copies = 1
	}
	return &PrintRequest{
		Form:          Form(strings.ToLower(p.Form)),
		FormID:        p.FormID,
		ImageBase64:   p.Picture,
		ImageFormat:   format,
		PaperWidthMm:  width,
		PaperHeightMm: height,
		Copies:        copies,
	}
}

func (p *probe) sel() *SelectRequest {
	s := &SelectRequest{
		Form:            Form(strings.ToLower(p.Form)),
		FormID:          p.FormID,
		SelectedID:      p.SelectedID,
		HeaderText:      p.HeaderText,
		StatusText:      p.StatusText,
		Status:          p.Status,
		StatusColor:     p.StatusColor,
		BackgroundColor: p.BackgroundColor,
		SearchEnabled:   strings.EqualFold(p.SearchAvailable, "true"),
	}
	if len(p.Items) > 0 {
		var items []SelectItem
		if err := json.Unmarshal(p.Items, &items); err == nil {
			for _, it := range items {
				if strings.TrimSpace(it.ID) == "" {
					continue
				}
				s.Items = append(s.Items, it)
			}
		}
	}
	if len(p.Buttons) > 0 {
		var buttons []ActionButton
		if err := json.Unmarshal(p.Buttons, &buttons); err == nil {
			for _, b := range buttons {
				if strings.TrimSpace(b.ID) == "" {
					continue
				}
				s.Buttons = append(s.Buttons, b)
			}
		}
	}
	return s
}

func parseFloatDefault(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func parseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
