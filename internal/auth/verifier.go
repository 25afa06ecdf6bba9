package auth

import (
	"fmt"

	"collab-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the result of verifying a join token. Role defaults to viewer
// when the token carries no role claim.
type Identity struct {
	UserID string
	Name   string
	Role   models.Role
}

// Verifier validates join tokens issued by the external identity service.
// The service itself never issues credentials.
type Verifier interface {
	Verify(tokenString string) (*Identity, error)
}

type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, ok := (*claims)["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("invalid user ID in token")
	}

	name, _ := (*claims)["name"].(string)
	if name == "" {
		name = userID
	}

	role := models.RoleViewer
	if r, ok := (*claims)["role"].(string); ok && models.Role(r).Valid() {
		role = models.Role(r)
	}

	return &Identity{UserID: userID, Name: name, Role: role}, nil
}
