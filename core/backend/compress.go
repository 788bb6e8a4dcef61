package backend

import (
	"net/http"

	"github.com/gorilla/handlers"
)

// handleCompression negotiates gzip/deflate response compression for
// all routes.
func (b *Backend) handleCompression() {
	b.router.Use(func(h http.Handler) http.Handler {
		return handlers.CompressHandler(h)
	})
}
