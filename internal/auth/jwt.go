package auth

import (
	"collaborative-canvas/internal/domain"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var secret []byte

// Init sets the signing secret. Must be called once at startup before
// any token is issued or verified.
func Init(signingSecret string) {
	secret = []byte(signingSecret)
}

// GenerateJWT issues an access token carrying the identity claims the
// rest of the system reads: stable user id, display name and, when the
// user belongs to one, the organization id.
func GenerateJWT(user *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"name": user.Name,
		"exp":  time.Now().Add(time.Hour * 24 * 3).Unix(), // expires in 3 days
	}
	if user.OrganizationID != nil {
		claims["org_id"] = *user.OrganizationID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func VerifyJWT(tokenString string) (*jwt.Token, error) {
	jwtToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if !jwtToken.Valid {
		return nil, errors.New("token invalid")
	}

	return jwtToken, nil
}

// IdentityFromToken extracts the caller identity from a verified token.
func IdentityFromToken(token *jwt.Token) (domain.Identity, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, errors.New("unexpected claims type")
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return domain.Identity{}, errors.New("token missing subject")
	}

	ident := domain.Identity{UserID: userID}
	if name, ok := claims["name"].(string); ok {
		ident.Name = name
	}
	if orgID, ok := claims["org_id"].(string); ok {
		ident.OrganizationID = orgID
	}

	return ident, nil
}
