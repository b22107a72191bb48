package auth

import (
	"time"

	"main/internal/session"

	"github.com/dgrijalva/jwt-go"
	"github.com/yanun0323/errors"
)

var (
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrSubjectMismatch = errors.New("auth: token subject mismatch")
)

const defaultTokenTTL = 12 * time.Hour

// Claims are the authorization claims carried in access tokens. The subject
// type scopes which realtime audience the holder may join.
type Claims struct {
	jwt.StandardClaims
	SubjectType string `json:"user_type,omitempty"`
	FullName    string `json:"full_name,omitempty"`
}

// Manager issues and verifies HS256 access tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewManager(secret string, ttl time.Duration, issuer string) *Manager {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Manager{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

// Issue creates a signed token for the given identity.
func (m *Manager) Issue(subjectID string, subjectType session.SubjectType, fullName string) (string, error) {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    m.issuer,
			Subject:   subjectID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(m.ttl).Unix(),
		},
		SubjectType: string(subjectType),
		FullName:    fullName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Verify parses and validates a signed token, including its expiry.
func (m *Manager) Verify(raw string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !session.SubjectType(claims.SubjectType).IsAvailable() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyFor validates a token and checks it matches the claimed identity,
// used on websocket upgrade where the endpoint path names the subject.
func (m *Manager) VerifyFor(raw string, subjectType session.SubjectType, subjectID string) (*Claims, error) {
	claims, err := m.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Subject != subjectID || claims.SubjectType != string(subjectType) {
		return nil, ErrSubjectMismatch
	}
	return claims, nil
}
