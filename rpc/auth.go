package rpc

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"questchain/crypto"
	"questchain/native/quest"
)

const signingDomain = "questchain-rpc"

// SignedEnvelope wraps the payload of every mutating call. Signature is the
// hex encoded 65-byte secp256k1 signature over SigningDigest.
type SignedEnvelope struct {
	Caller    string          `json:"caller"`
	Nonce     uint64          `json:"nonce"`
	ExpiresAt int64           `json:"expiresAt"`
	Signature string          `json:"signature"`
	Payload   json.RawMessage `json:"payload"`
}

// SigningDigest binds a payload to its method, nonce and expiry.
func SigningDigest(method string, payload []byte, nonce uint64, expiresAt int64) []byte {
	var nonceBytes, expiryBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	binary.BigEndian.PutUint64(expiryBytes[:], uint64(expiresAt))
	return crypto.Keccak256([]byte(signingDomain), []byte(method), payload, nonceBytes[:], expiryBytes[:])
}

// SignEnvelope produces an envelope for payload signed by key.
func SignEnvelope(key *crypto.PrivateKey, method string, payload interface{}, nonce uint64, expiresAt int64) (*SignedEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	sig, err := key.SignDigest(SigningDigest(method, raw, nonce, expiresAt))
	if err != nil {
		return nil, err
	}
	return &SignedEnvelope{
		Caller:    key.PubKey().Address().String(),
		Nonce:     nonce,
		ExpiresAt: expiresAt,
		Signature: hex.EncodeToString(sig),
		Payload:   raw,
	}, nil
}

var (
	errEnvelopeExpired = errors.New("signature expired")
	errEnvelopeFuture  = errors.New("signature expiry too far in the future")
	errSignerMismatch  = errors.New("signature does not match caller")
)

// verify authenticates env for method and returns the proven caller.
func (s *Server) verify(method string, env *SignedEnvelope) (quest.Caller, *failure) {
	caller, err := crypto.ParseAddress(env.Caller)
	if err != nil {
		return quest.Caller{}, invalidParams("invalid caller: %v", err)
	}
	now := s.nowFn().Unix()
	if env.ExpiresAt <= now {
		return quest.Caller{}, fail(http.StatusUnauthorized, codeUnauthorized, errEnvelopeExpired.Error(), nil)
	}
	if time.Duration(env.ExpiresAt-now)*time.Second > s.ttl {
		return quest.Caller{}, fail(http.StatusUnauthorized, codeUnauthorized, errEnvelopeFuture.Error(), nil)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(env.Signature), "0x"))
	if err != nil {
		return quest.Caller{}, invalidParams("signature must be hex")
	}
	signer, err := crypto.RecoverAddress(SigningDigest(method, env.Payload, env.Nonce, env.ExpiresAt), sig)
	if err != nil {
		return quest.Caller{}, fail(http.StatusUnauthorized, codeUnauthorized, err.Error(), nil)
	}
	if signer != caller {
		return quest.Caller{}, fail(http.StatusUnauthorized, codeUnauthorized, errSignerMismatch.Error(), nil)
	}
	if !s.nonces.remember(caller, env.Nonce, time.Unix(env.ExpiresAt, 0), s.nowFn()) {
		return quest.Caller{}, fail(http.StatusConflict, codeReplay, "nonce already used", nil)
	}
	return quest.Caller(signer), nil
}

// nonceCache rejects replays of a (caller, nonce) pair until the envelope
// that carried it expires.
type nonceCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newNonceCache() *nonceCache {
	return &nonceCache{seen: make(map[string]time.Time)}
}

func (c *nonceCache) remember(caller [20]byte, nonce uint64, expires, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, exp := range c.seen {
		if !now.Before(exp) {
			delete(c.seen, key)
		}
	}
	key := fmt.Sprintf("%x/%d", caller, nonce)
	if _, exists := c.seen[key]; exists {
		return false
	}
	c.seen[key] = expires
	return true
}

// bearerGate optionally requires an HS256 JWT on mutating calls so that only
// trusted frontends can submit transactions.
type bearerGate struct {
	secret []byte
	issuer string
}

func newBearerGate(secret, issuer string) *bearerGate {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &bearerGate{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}
}

func (g *bearerGate) check(r *http.Request) *failure {
	if g == nil {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return fail(http.StatusUnauthorized, codeUnauthorized, "missing Authorization header", nil)
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return fail(http.StatusUnauthorized, codeUnauthorized, "Authorization header must use Bearer scheme", nil)
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	opts := []jwt.ParserOption{jwt.WithLeeway(30 * time.Second), jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if g.issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return g.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return fail(http.StatusUnauthorized, codeUnauthorized, "invalid bearer token", nil)
	}
	return nil
}
