// Package services реализует вход оператора: проверку пароля по
// bcrypt-хэшу из конфигурации и выдачу JWT с ролью admin.
package services

import (
	"errors"

	"github.com/magabrotheeeer/credential-broker/internal/lib/jwt"
	"github.com/magabrotheeeer/credential-broker/internal/lib/password"
)

// ErrInvalidCredentials возвращается при неверном имени или пароле.
var ErrInvalidCredentials = errors.New("invalid username or password")

// RoleAdmin — роль, зашиваемая в операторский токен.
const RoleAdmin = "admin"

// AuthService проверяет учётные данные оператора и выдаёт токены.
type AuthService struct {
	operatorUsername string
	operatorHash     string
	jwtMaker         jwt.Maker
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(operatorUsername, operatorHash string, jwtMaker jwt.Maker) *AuthService {
	return &AuthService{
		operatorUsername: operatorUsername,
		operatorHash:     operatorHash,
		jwtMaker:         jwtMaker,
	}
}

// Login сверяет имя и пароль оператора и возвращает подписанный JWT.
func (a *AuthService) Login(username, pass string) (string, error) {
	if username != a.operatorUsername {
		return "", ErrInvalidCredentials
	}
	if err := password.CompareHash(a.operatorHash, pass); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.jwtMaker.GenerateToken(username, RoleAdmin)
}
