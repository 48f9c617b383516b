package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xela07ax/closegate-platform/internal/domain"
)

// clockSkewLeeway — допуск на рассинхрон часов между IdP и платформой.
const clockSkewLeeway = 30 * time.Second

var ErrNoSubject = errors.New("token carries no user_id")

// BaseValidator проверяет RS256-токены внешнего IdP по публичному ключу.
// Платформа токены не выпускает, только проверяет.
type BaseValidator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewBaseValidator(pubKey *rsa.PublicKey) *BaseValidator {
	return &BaseValidator{
		publicKey: pubKey,
		// Белый список алгоритмов закрывает подмену RS256 -> HS256:
		// с симметричным алгоритмом публичный ключ превратился бы в секрет
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithLeeway(clockSkewLeeway),
		),
	}
}

// VerifyToken разбирает и проверяет токен. Помимо подписи и срока действия
// требует непустой user_id: без него решение шлюза нельзя атрибутировать
// в следе аудита.
func (v *BaseValidator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")
	tokenStr = strings.TrimSpace(tokenStr)

	token, err := v.parser.ParseWithClaims(tokenStr, &domain.CustomClaims{},
		func(*jwt.Token) (interface{}, error) { return v.publicKey, nil })
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*domain.CustomClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	if claims.UserID == "" {
		return nil, ErrNoSubject
	}
	return claims, nil
}

// ParseRSAPublicKey превращает PEM-байты ключа в объект для проверки подписи.
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
