// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long a lobby capability stays valid.
const DefaultTokenTTL = time.Hour

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims binds a player to one lobby.
type Claims struct {
	PlayerID  uuid.UUID
	Name      string
	LobbyCode string
	IsHost    bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer signs and verifies lobby capability tokens with an ed25519 key pair.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration
	now        func() time.Time
}

// NewIssuer generates a fresh key pair. Tokens do not survive a restart.
func NewIssuer(ttl time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return newIssuer(priv, pub, ttl), nil
}

// NewIssuerFromFiles reads a raw ed25519 key pair from disk.
func NewIssuerFromFiles(privatePath, publicPath string, ttl time.Duration) (*Issuer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key files must hold raw ed25519 keys (%d and %d bytes)", ed25519.PrivateKeySize, ed25519.PublicKeySize)
	}
	return newIssuer(ed25519.PrivateKey(privateKeyData), ed25519.PublicKey(publicKeyData), ttl), nil
}

func newIssuer(priv ed25519.PrivateKey, pub ed25519.PublicKey, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{privateKey: priv, publicKey: pub, ttl: ttl, now: time.Now}
}

// Issue signs a token for playerID in lobbyCode.
func (i *Issuer) Issue(playerID uuid.UUID, name, lobbyCode string, isHost bool) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"sub":    playerID.String(),
		"name":   name,
		"lobby":  lobbyCode,
		"isHost": isHost,
		"iat":    now.Unix(),
		"exp":    now.Add(i.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// Verify checks signature and expiry and returns the decoded claims.
// Every failure wraps ErrInvalidToken.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	}, jwt.WithExpirationRequired(), jwt.WithIssuedAt(), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: claims", ErrInvalidToken)
	}
	sub, _ := mc["sub"].(string)
	playerID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: sub", ErrInvalidToken)
	}
	lobby, _ := mc["lobby"].(string)
	if lobby == "" {
		return nil, fmt.Errorf("%w: missing lobby", ErrInvalidToken)
	}
	name, _ := mc["name"].(string)
	isHost, _ := mc["isHost"].(bool)

	c := &Claims{PlayerID: playerID, Name: name, LobbyCode: lobby, IsHost: isHost}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
