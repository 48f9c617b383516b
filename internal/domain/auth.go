package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — полезная нагрузка RS256-токена, выданного внешним IdP.
// UserID попадает в аудит как инициатор действия workflow.
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // Напр. "close.submit": true
	jwt.RegisteredClaims
}
