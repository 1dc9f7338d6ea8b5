package queue

import (
	"errors"

	"orderscout/internal/browser"
	"orderscout/internal/executor"
)

// FailureText maps an internal error to the single user-facing status
// message a failed task produces.
func FailureText(err error) string {
	switch {
	case errors.Is(err, executor.ErrInvalidCredentials):
		return "Не удалось войти: проверьте логин и пароль от аккаунта."
	case errors.Is(err, executor.ErrLoginTimeout):
		return "Вход занял слишком много времени. Попробуйте позже."
	case errors.Is(err, executor.ErrSearchTimeout):
		return "Поиск занял слишком много времени. Попробуйте позже."
	case errors.Is(err, executor.ErrNoCookiesForSession):
		return "Сессия устарела. Повторите поиск, вход будет выполнен заново."
	case errors.Is(err, browser.ErrResourceExhausted):
		return "Все рабочие сессии заняты. Повторите запрос через минуту."
	default:
		return "Поиск завершился ошибкой. Попробуйте позже."
	}
}
