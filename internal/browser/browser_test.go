package browser

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/promobot/internal/affiliate"
)

var (
	_ affiliate.Browser = (*Chrome)(nil)
	_ affiliate.Page    = (*Page)(nil)
)

func TestCookieFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	in := []savedCookie{
		{Name: "ssid", Value: "abc", Domain: ".mercadolibre.com.mx", Path: "/", Expires: 1893456000, Secure: true, HTTPOnly: true, SameSite: "Lax"},
		{Name: "tmp", Value: "1", Domain: "www.mercadolibre.com.mx", Path: "/", Session: true},
	}
	require.NoError(t, writeCookies(path, in))

	out, err := readCookies(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	c := &Chrome{opts: Options{SessionPath: path}}
	assert.True(t, c.SessionExists())
	assert.False(t, (&Chrome{opts: Options{SessionPath: path + ".missing"}}).SessionExists())
	assert.False(t, (&Chrome{}).SessionExists())
}

func TestJSString(t *testing.T) {
	assert.Equal(t, `"button[title=\"Compartir\"]"`, jsString(`button[title="Compartir"]`))
	assert.Contains(t, strings.Replace(clickTextJS, "%s", jsString("No, gracias"), 1), `const label = "No, gracias";`)
}
