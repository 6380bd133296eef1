// Package signing computes and checks keyed digests over canonical JSON.
//
// Two trust domains use this package and must never share a key: the
// internal domain (dispatcher signs task envelopes, workers verify them)
// and the authority domain (the authorization service signs and validates
// human-originated delivery signatures). The key types are distinct so the
// compiler rejects code that passes one where the other belongs.
package signing

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize serializes v into a stable byte form: compact JSON with
// object keys sorted recursively. Signer and validator must agree on this
// form or signatures will never match.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize marshal: %w", err)
	}
	// Round-trip through generic values so struct field order, integer
	// widths and map iteration all normalize to one representation.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalize normalize: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize remarshal: %w", err)
	}
	return out, nil
}

func digest(secret []byte, data any) (string, error) {
	canon, err := Canonicalize(data)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, secret)
	mac.Write(canon)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func verify(secret []byte, data any, sig string) bool {
	want, err := digest(secret, data)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(sig))
}

// InternalKey authenticates dispatcher-originated task envelopes. It is
// shared only between the dispatcher and its workers.
type InternalKey struct {
	secret []byte
}

// NewInternalKey wraps the internal dispatch signing secret.
func NewInternalKey(secret string) InternalKey {
	return InternalKey{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA512 digest of data under the internal key.
func (k InternalKey) Sign(data any) (string, error) {
	return digest(k.secret, data)
}

// Validate recomputes the digest and compares in constant time.
func (k InternalKey) Validate(data any, sig string) bool {
	return verify(k.secret, data, sig)
}

// AuthorityKey authenticates delivery-confirmation payloads across service
// boundaries. Only the authorization service holds it; other services
// validate by calling the authority, not locally.
type AuthorityKey struct {
	secret []byte
}

// NewAuthorityKey wraps the authority signing secret.
func NewAuthorityKey(secret string) AuthorityKey {
	return AuthorityKey{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA512 digest of data under the authority key.
func (k AuthorityKey) Sign(data any) (string, error) {
	return digest(k.secret, data)
}

// Validate recomputes the digest and compares in constant time.
func (k AuthorityKey) Validate(data any, sig string) bool {
	return verify(k.secret, data, sig)
}
