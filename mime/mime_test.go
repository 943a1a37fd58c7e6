package mime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByExtension(t *testing.T) {
	t.Run("built-in", func(t *testing.T) {
		require.Equal(t, HTML, ByExtension("/srv/www/index.html", nil))
		require.Equal(t, JPEG, ByExtension("photo.JPG", nil))
		require.Equal(t, "font/woff2", ByExtension("a/b/font.woff2", nil))
	})

	t.Run("unknown or missing extension", func(t *testing.T) {
		require.Equal(t, OctetStream, ByExtension("archive.unknownext", nil))
		require.Equal(t, OctetStream, ByExtension("Makefile", nil))
	})

	t.Run("overrides win", func(t *testing.T) {
		overrides := map[string]MIME{
			".html": "text/x-custom",
			".md":   "text/markdown",
		}
		require.Equal(t, "text/x-custom", ByExtension("index.html", overrides))
		require.Equal(t, "text/markdown", ByExtension("README.md", overrides))
		require.Equal(t, CSS, ByExtension("style.css", overrides))
	})
}
