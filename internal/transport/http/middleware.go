package http

import (
	"net/http"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

// Заголовки личности, проставляемые вышестоящим identity-провайдером.
// Провайдер проверяет токены сам: сюда приходят уже проверенные значения.
const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

// actorFromRequest извлекает актора из заголовков запроса.
// Пустые заголовки дают гостя: часть операций доступна без личности.
func actorFromRequest(r *http.Request) domain.Actor {
	actor := domain.Actor{
		UserID: r.Header.Get(headerUserID),
		Role:   domain.Role(r.Header.Get(headerUserRole)),
	}
	if !actor.Role.Valid() {
		actor.Role = domain.RoleUser
	}
	return actor
}
