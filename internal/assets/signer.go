// Package assets resolves stored asset file paths to signed, time-limited URLs
// for embedding in typeset documents.
package assets

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/docpress/internal/model"
)

// URLResolver turns an asset record into an externally reachable URL.
type URLResolver interface {
	Resolve(asset model.Asset) (string, error)
}

// HMACSigner produces expiring URLs of the form
// <base>/<file_path>?expires=<unix>&sig=<hex hmac>. The signature covers the
// file path and the expiry so neither can be tampered with.
type HMACSigner struct {
	baseURL string
	secret  []byte
	ttl     time.Duration

	// now is overridable for tests.
	now func() time.Time
}

// NewHMACSigner builds a signer. ttl values <= 0 fall back to 15 minutes.
func NewHMACSigner(baseURL, secret string, ttl time.Duration) *HMACSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &HMACSigner{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Resolve signs the asset's file path with the configured TTL.
func (s *HMACSigner) Resolve(asset model.Asset) (string, error) {
	if asset.FilePath == "" {
		return "", fmt.Errorf("asset %s has no file path", asset.Name)
	}
	expires := s.now().Add(s.ttl).Unix()
	sig := s.sign(asset.FilePath, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)
	return fmt.Sprintf("%s/%s?%s", s.baseURL, strings.TrimLeft(asset.FilePath, "/"), q.Encode()), nil
}

// Verify checks a previously issued signature and that it has not expired.
func (s *HMACSigner) Verify(filePath string, expires int64, sig string) bool {
	if s.now().Unix() > expires {
		return false
	}
	want := s.sign(filePath, expires)
	return hmac.Equal([]byte(want), []byte(sig))
}

func (s *HMACSigner) sign(filePath string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", filePath, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
