package assets

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpress/internal/model"
)

func TestResolveProducesVerifiableURL(t *testing.T) {
	signer := NewHMACSigner("http://localhost:4000/assets", "secret", time.Minute)

	raw, err := signer.Resolve(model.Asset{Name: "logo", FilePath: "org/logo.png"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://localhost:4000/assets/org/logo.png?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	require.NoError(t, err)

	assert.True(t, signer.Verify("org/logo.png", expires, u.Query().Get("sig")))
	assert.False(t, signer.Verify("org/other.png", expires, u.Query().Get("sig")))
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer := NewHMACSigner("http://localhost", "secret", time.Minute)
	base := time.Now()
	signer.now = func() time.Time { return base }

	raw, err := signer.Resolve(model.Asset{Name: "logo", FilePath: "logo.png"})
	require.NoError(t, err)
	u, _ := url.Parse(raw)
	expires, _ := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	sig := u.Query().Get("sig")

	assert.True(t, signer.Verify("logo.png", expires, sig))

	signer.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.False(t, signer.Verify("logo.png", expires, sig))
}

func TestResolveMissingFilePath(t *testing.T) {
	signer := NewHMACSigner("http://localhost", "secret", time.Minute)
	_, err := signer.Resolve(model.Asset{Name: "logo"})
	assert.Error(t, err)
}
