package render

import (
	"errors"

	"github.com/scanwork/scanwork/internal/services"
)

// User-facing failure texts. Server-authored messages pass through verbatim;
// these cover only failures produced on the device.
const (
	MsgTimeout       = "Таймаут ожидания ответа от сервера"
	MsgUnreachable   = "Не удалось соединиться с сервером. Проверьте интернет соединение!"
	MsgNoSession     = "Требуется авторизация"
	MsgBadScan       = "Код не распознан"
	MsgNotFound      = "Документ не найден"
	MsgServerBroke   = "Сервер вернул некорректный ответ"
	MsgGenericError  = "Ошибка"
	MsgInvalidInput  = "Некорректный ввод"
	MsgHTTPRejection = "Сервер отклонил запрос"
)

// UserMessage maps an operation error to the text shown in the error banner.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *services.ServerError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	switch {
	case errors.Is(err, services.ErrTimeout):
		return MsgTimeout
	case errors.Is(err, services.ErrNetworkUnavailable):
		return MsgUnreachable
	case errors.Is(err, services.ErrNoSession):
		return MsgNoSession
	case errors.Is(err, services.ErrInvalidScanFormat):
		return MsgBadScan
	case errors.Is(err, services.ErrDocumentNotFound):
		return MsgNotFound
	case errors.Is(err, services.ErrMalformedResponse):
		return MsgServerBroke
	case errors.Is(err, services.ErrInvalidInput):
		return MsgInvalidInput
	case errors.Is(err, services.ErrHTTPStatus):
		return MsgHTTPRejection
	default:
		return MsgGenericError
	}
}
