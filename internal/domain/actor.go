package domain

// Role — роль аутентифицированного пользователя, выдаётся внешним
// identity-провайдером вместе с проверенным userID.
type Role string

const (
	RoleUser       Role = "USER"
	RoleSpecialist Role = "SPECIALIST"
	RoleAdmin      Role = "ADMIN"
)

// Valid проверяет, что роль относится к поддерживаемым значениям.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSpecialist, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor — проверенная личность запроса. Передаётся в сервисы явным
// параметром: скрытого «текущего пользователя» в системе нет.
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin сообщает, обладает ли актор административными правами.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsReviewer сообщает, может ли актор проверять и публиковать сборки.
func (a Actor) IsReviewer() bool {
	return a.Role == RoleSpecialist || a.Role == RoleAdmin
}

// Owns проверяет владение ресурсом по идентификатору владельца.
func (a Actor) Owns(ownerID string) bool {
	return ownerID != "" && a.UserID == ownerID
}

// CanAccess — единый авторизационный предикат для чтения чужих ресурсов:
// владелец или админ. Специалисту доступ к приватным данным не даёт.
func (a Actor) CanAccess(ownerID string) bool {
	return a.Owns(ownerID) || a.IsAdmin()
}
