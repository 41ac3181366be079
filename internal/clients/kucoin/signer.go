package kucoin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vadiminshakov/coinbook/internal/errs"
)

const (
	headerKey        = "KC-API-KEY"
	headerSign       = "KC-API-SIGN"
	headerTimestamp  = "KC-API-TIMESTAMP"
	headerPassphrase = "KC-API-PASSPHRASE"
	headerKeyVersion = "KC-API-KEY-VERSION"

	// DefaultKeyVersion marks passphrases that are sent HMAC-signed.
	DefaultKeyVersion = "2"
)

// Credentials of a KuCoin API key.
type Credentials struct {
	KeyID      string
	Secret     string
	Passphrase string
}

// SignedRequest holds the authentication values of one call.
// It is recomputed per call because the timestamp is part of the signed payload.
type SignedRequest struct {
	Timestamp           string
	Signature           string
	PassphraseSignature string
	KeyID               string
	KeyVersion          string
}

// Headers renders the KuCoin authentication header set.
func (s SignedRequest) Headers() http.Header {
	h := make(http.Header, 6)
	h.Set(headerKey, s.KeyID)
	h.Set(headerSign, s.Signature)
	h.Set(headerTimestamp, s.Timestamp)
	h.Set(headerPassphrase, s.PassphraseSignature)
	h.Set(headerKeyVersion, s.KeyVersion)
	h.Set("Content-Type", "application/json")
	return h
}

// Signer produces KuCoin authentication headers.
type Signer struct {
	creds      Credentials
	keyVersion string
	now        func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithKeyVersion overrides the key version marker.
func WithKeyVersion(v string) SignerOption {
	return func(s *Signer) {
		if v = strings.TrimSpace(v); v != "" {
			s.keyVersion = v
		}
	}
}

// NewSigner creates a Signer. It fails before any network call when the secret or key id is missing.
func NewSigner(creds Credentials, opts ...SignerOption) (*Signer, error) {
	if strings.TrimSpace(creds.Secret) == "" {
		return nil, errs.Configuration("kucoin signer", errs.WithMessage("api secret is empty"))
	}
	if strings.TrimSpace(creds.KeyID) == "" {
		return nil, errs.Configuration("kucoin signer", errs.WithMessage("api key is empty"))
	}

	s := &Signer{creds: creds, keyVersion: DefaultKeyVersion, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign signs timestamp + METHOD + path + query + body. body must be the exact bytes sent,
// empty for GET or bodyless requests. query includes its leading "?" when present.
func (s *Signer) Sign(method, path, query string, body []byte) SignedRequest {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)

	var prehash strings.Builder
	prehash.Grow(len(ts) + len(method) + len(path) + len(query) + len(body))
	prehash.WriteString(ts)
	prehash.WriteString(strings.ToUpper(method))
	prehash.WriteString(path)
	prehash.WriteString(query)
	prehash.Write(body)

	return SignedRequest{
		Timestamp:           ts,
		Signature:           s.hmac(prehash.String()),
		PassphraseSignature: s.hmac(s.creds.Passphrase),
		KeyID:               s.creds.KeyID,
		KeyVersion:          s.keyVersion,
	}
}

func (s *Signer) hmac(message string) string {
	mac := hmac.New(sha256.New, []byte(s.creds.Secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
