package mw

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// storedResponse is a finished 200 response kept for replay.
type storedResponse struct {
	contentType string
	body        []byte
	storedAt    time.Time
}

// teeWriter copies the body into buf while it is written to the client.
type teeWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache replays 200 responses to GET requests for ttl, keyed by path and
// normalised query. Only reads whose result may be slightly stale, or never
// changes, should use it. A request with "Cache-Control: no-cache" bypasses
// the lookup and refreshes the entry.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c.Request)
		if !bypassCache(c.Request) {
			if v, ok := store.Get(key); ok {
				replay(c, v.(storedResponse))
				return
			}
		}

		c.Header("X-Cache", "MISS")
		tee := &teeWriter{ResponseWriter: c.Writer}
		c.Writer = tee
		c.Next()

		if tee.Status() != http.StatusOK {
			return
		}
		store.Set(key, storedResponse{
			contentType: tee.Header().Get("Content-Type"),
			body:        append([]byte(nil), tee.buf.Bytes()...),
			storedAt:    time.Now(),
		}, ttl)
	}
}

func replay(c *gin.Context, resp storedResponse) {
	c.Header("X-Cache", "HIT")
	c.Header("Age", strconv.Itoa(int(time.Since(resp.storedAt).Seconds())))
	c.Data(http.StatusOK, resp.contentType, resp.body)
	c.Abort()
}

func cacheKey(r *http.Request) string {
	q := r.URL.Query().Encode()
	if q == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q
}

func bypassCache(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Cache-Control")), "no-cache")
}
