package jwttoken

import (
	principalmw "attesto/pkg/platform/middleware/principal"
)

// JWTServiceAdapter narrows JWTService to the middleware's Verifier interface.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*principalmw.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &principalmw.Claims{
		Principal: claims.Subject,
		JTI:       claims.ID,
	}, nil
}
