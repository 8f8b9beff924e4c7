package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleKiosk is the role carried by kiosk tokens.
const RoleKiosk = "kiosk"

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrIssuerMismatch = errors.New("issuer mismatch")
	ErrWrongTokenType = errors.New("wrong token type")
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Claims is the JWT payload of a kiosk token.
type Claims struct {
	KioskID string `json:"kiosk_id"`
	Role    string `json:"role"`
	Type    string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and validates kiosk tokens with HS256.
type Issuer struct {
	Name       string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(name, key string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{Name: name, Key: []byte(key), AccessTTL: accessTTL, RefreshTTL: refreshTTL, now: time.Now}
}

// Issue issues signed access and refresh tokens for a kiosk.
func (i *Issuer) Issue(kioskID, role string) (TokenPair, error) {
	now := i.now()
	accessExp := now.Add(i.AccessTTL)
	refreshExp := now.Add(i.RefreshTTL)

	accessToken, err := i.sign(kioskID, role, typeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := i.sign(kioskID, role, typeRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (i *Issuer) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := i.parse(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Type != typeRefresh {
		return TokenPair{}, ErrWrongTokenType
	}
	return i.Issue(claims.KioskID, claims.Role)
}

// Parse validates an access token and returns its claims.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	claims, err := i.parse(tokenStr)
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != typeAccess {
		return Claims{}, ErrWrongTokenType
	}
	return claims, nil
}

func (i *Issuer) sign(kioskID, role, typ string, now, exp time.Time) (string, error) {
	claims := Claims{
		KioskID: kioskID,
		Role:    role,
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.Name,
			Subject:   kioskID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Key)
}

func (i *Issuer) parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.Key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if i.Name != "" && claims.Issuer != i.Name {
		return Claims{}, ErrIssuerMismatch
	}
	return *claims, nil
}
