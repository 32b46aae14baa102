package protocol

// Form identifies the logical screen/resource a server message pertains to.
type Form string

const (
	FormDoc     Form = "doc"
	FormPos     Form = "pos"
	FormDocList Form = "doclist"
	FormTasks   Form = "tasks"
	FormLogin   Form = "login"
	FormSelect  Form = "select"
)

// Request verbs carried in the "Request" envelope field.
const (
	RequestRefresh  = "refresh"
	RequestScan     = "scan"
	RequestSelect   = "select"
	RequestDialog   = "dialog"
	RequestButton   = "button"
	RequestDelete   = "delete"
	RequestLogin    = "login"
	RequestLogout   = "logout"
	RequestUserList = "userlist"
)

// ActionButton is a server-defined action rendered at the bottom of a form.
// Icon names arrive as dotted paths like "icons.outlined.add"; Color is a hex
// string without '#'.
type ActionButton struct {
	ID    string `json:"Id"`
	Name  string `json:"Name,omitempty"`
	Icon  string `json:"Icon,omitempty"`
	Color string `json:"Color,omitempty"`
}

// UserListRequest asks for the login user roster. The only unauthenticated
// request besides login itself.
type UserListRequest struct {
	Form    Form   `json:"Form"`
	Request string `json:"Request"`
}

func NewUserListRequest() UserListRequest {
	return UserListRequest{Form: FormLogin, Request: RequestUserList}
}

type User struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

type UserListResponse struct {
	Users []User `json:"Users"`
}

type LoginRequest struct {
	Form     Form   `json:"Form"`
	User     string `json:"User"`
	Password string `json:"Password"`
	Request  string `json:"Request"`
}

func NewLoginRequest(userID, password string) LoginRequest {
	return LoginRequest{Form: FormLogin, User: userID, Password: password, Request: RequestLogin}
}

// LoginScanRequest is the alternate credential path: a single scanned token in
// place of user+password.
type LoginScanRequest struct {
	Form    Form   `json:"Form"`
	FormID  string `json:"FormId"`
	Request string `json:"Request"`
	Text    string `json:"Text"`
}

func NewLoginScanRequest(text string) LoginScanRequest {
	return LoginScanRequest{Form: FormLogin, Request: RequestScan, Text: text}
}

type LoginResponse struct {
	MessageType string `json:"MessageType"`
	Bearer      string `json:"Bearer"`
	Message     string `json:"Message"`
}

type LogoutRequest struct {
	Form    Form   `json:"Form"`
	Bearer  string `json:"Bearer"`
	Request string `json:"Request"`
}

func NewLogoutRequest(bearer string) LogoutRequest {
	return LogoutRequest{Form: FormLogin, Bearer: bearer, Request: RequestLogout}
}

// ListRequest refreshes the task list form.
type ListRequest struct {
	Bearer  string `json:"Bearer"`
	Form    Form   `json:"Form"`
	FormID  string `json:"FormId"`
	Request string `json:"Request"`
}

func NewListRequest(bearer string) ListRequest {
	return ListRequest{Bearer: bearer, Form: FormDocList, Request: RequestRefresh}
}

// FormRequest refreshes a specific document or position form.
type FormRequest struct {
	Bearer  string `json:"Bearer"`
	Form    Form   `json:"Form"`
	FormID  string `json:"FormId"`
	Request string `json:"Request"`
}

func NewFormRequest(bearer string, form Form, formID string) FormRequest {
	return FormRequest{Bearer: bearer, Form: form, FormID: formID, Request: RequestRefresh}
}

// ScanRequest submits a scanned code against a form. FormID is empty for
// list-level scans.
type ScanRequest struct {
	Bearer  string `json:"Bearer"`
	Form    Form   `json:"Form"`
	FormID  string `json:"FormId"`
	Request string `json:"Request"`
	Text    string `json:"Text"`
}

func NewScanRequest(bearer string, form Form, formID, text string) ScanRequest {
	return ScanRequest{Bearer: bearer, Form: form, FormID: formID, Request: RequestScan, Text: text}
}

// ButtonRequest acknowledges a server-driven dialog button or presses a form
// action button. RequestKind is "dialog" for the former and "button" for the
// latter.
type ButtonRequest struct {
	Bearer   string `json:"Bearer"`
	Form     Form   `json:"Form"`
	FormID   string `json:"FormId"`
	Request  string `json:"Request"`
	ButtonID string `json:"ButtonId"`
}

func NewButtonRequest(bearer string, form Form, formID, buttonID, requestKind string) ButtonRequest {
	return ButtonRequest{Bearer: bearer, Form: form, FormID: formID, Request: requestKind, ButtonID: buttonID}
}

// SelectItemRequest reports the option picked on a server-driven select page.
type SelectItemRequest struct {
	Bearer     string `json:"Bearer"`
	Form       Form   `json:"Form"`
	FormID     string `json:"FormId"`
	Request    string `json:"Request"`
	SelectedID string `json:"SelectedId"`
}

func NewSelectItemRequest(bearer string, form Form, formID, selectedID string) SelectItemRequest {
	return SelectItemRequest{Bearer: bearer, Form: form, FormID: formID, Request: RequestSelect, SelectedID: selectedID}
}

// DeleteRequest removes one position line item, or all of them when DeleteID
// is empty.
type DeleteRequest struct {
	Bearer   string `json:"Bearer"`
	Form     Form   `json:"Form"`
	FormID   string `json:"FormId"`
	Request  string `json:"Request"`
	DeleteID string `json:"DeleteId"`
}

func NewDeleteRequest(bearer, formID, deleteID string) DeleteRequest {
	return DeleteRequest{Bearer: bearer, Form: FormPos, FormID: formID, Request: RequestDelete, DeleteID: deleteID}
}

// Order is a single line inside a task on the list form. The wire keys
// "Comment 1"/"Comment 2" contain a space; encoding/json matches
// "statusColor" case-insensitively so the lowercase variant some servers send
// decodes into StatusColor as well.
type Order struct {
	Name        string `json:"Name"`
	Comment1    string `json:"Comment 1,omitempty"`
	Comment2    string `json:"Comment 2,omitempty"`
	Status      string `json:"Status,omitempty"`
	StatusColor string `json:"StatusColor,omitempty"`
	ID          string `json:"Id"`
}

type Task struct {
	Name   string  `json:"Name"`
	ID     string  `json:"Id"`
	Orders []Order `json:"Orders"`
}

type ListResponse struct {
	MessageType     string         `json:"MessageType"`
	Form            Form           `json:"Form"`
	Tasks           []Task         `json:"Tasks"`
	Buttons         []ActionButton `json:"Buttons"`
	SearchAvailable string         `json:"SearchAvailable"`
	BackgroundColor string         `json:"BackgroundColor"`
}

type DocItem struct {
	Name        string `json:"Name"`
	ID          string `json:"Id"`
	StatusText  string `json:"StatusText,omitempty"`
	Status      string `json:"Status,omitempty"`
	StatusColor string `json:"StatusColor,omitempty"`
}

type DocResponse struct {
	MessageType     string         `json:"MessageType"`
	Form            Form           `json:"Form"`
	FormID          string         `json:"FormId"`
	SelectedID      string         `json:"SelectedId"`
	HeaderText      string         `json:"HeaderText"`
	StatusText      string         `json:"StatusText"`
	Status          string         `json:"Status"`
	StatusColor     string         `json:"StatusColor"`
	BackgroundColor string         `json:"BackgroundColor"`
	Items           []DocItem      `json:"Items"`
	Buttons         []ActionButton `json:"Buttons"`
}

// PosItem carries the scanned code text in addition to the document item
// fields.
type PosItem struct {
	Name        string `json:"Name"`
	ID          string `json:"Id"`
	Text        string `json:"Text,omitempty"`
	StatusText  string `json:"StatusText,omitempty"`
	Status      string `json:"Status,omitempty"`
	StatusColor string `json:"StatusColor,omitempty"`
}

type PosResponse struct {
	MessageType     string         `json:"MessageType"`
	Form            Form           `json:"Form"`
	FormID          string         `json:"FormId"`
	SelectedID      string         `json:"SelectedId"`
	HeaderText      string         `json:"HeaderText"`
	StatusText      string         `json:"StatusText"`
	Status          string         `json:"Status"`
	StatusColor     string         `json:"StatusColor"`
	BackgroundColor string         `json:"BackgroundColor"`
	Items           []PosItem      `json:"Items"`
	Buttons         []ActionButton `json:"Buttons"`
}

// DialogButton with a blank ID closes the dialog locally without a server
// round trip.
type DialogButton struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

// DialogRequest is a server-driven modal. Ephemeral: lives on the dialog bus
// until acknowledged or superseded.
type DialogRequest struct {
	Form            Form
	FormID          string
	Header          string
	Text            string
	Status          string
	StatusColor     string
	BackgroundColor string
	Buttons         []DialogButton
}

// SelectItem is one pickable option on a server-driven select page.
type SelectItem struct {
	Name        string `json:"Name"`
	ID          string `json:"Id"`
	Comment     string `json:"Comment,omitempty"`
	Status      string `json:"Status,omitempty"`
	StatusColor string `json:"StatusColor,omitempty"`
	Icon        string `json:"Icon,omitempty"`
}

// SelectRequest is a server-driven full-screen picker, distinct from normal
// document browsing. Ephemeral.
type SelectRequest struct {
	Form            Form
	FormID          string
	SelectedID      string
	HeaderText      string
	StatusText      string
	Status          string
	StatusColor     string
	BackgroundColor string
	SearchEnabled   bool
	Items           []SelectItem
	Buttons         []ActionButton
}

// PrintRequest is consumed exactly once by the printer collaborator.
type PrintRequest struct {
	Form          Form
	FormID        string
	ImageBase64   string
	ImageFormat   string
	PaperWidthMm  float64
	PaperHeightMm float64
	Copies        int
}
