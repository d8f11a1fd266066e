package upstream

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MirrorFile names the file a response for path and query is recorded under,
// relative to the mirror directory. Query parameters are sorted so the same
// request always maps to the same file.
func MirrorFile(p string, query url.Values) string {
	name := strings.Trim(path.Clean("/"+p), "/")
	if name == "" {
		name = "index"
	}
	if len(query) > 0 {
		name += "@" + query.Encode()
	}
	return filepath.FromSlash(name) + ".json"
}

// RecordingTransport saves every 2xx response body under Dir before handing
// it back to the caller unchanged.
type RecordingTransport struct {
	Dir    string
	Base   http.RoundTripper
	Logger *zap.Logger
}

func (t *RecordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	dst := filepath.Join(t.Dir, MirrorFile(req.URL.Path, req.URL.Query()))
	if err := writeFile(dst, body); err != nil {
		return nil, fmt.Errorf("record %s: %w", req.URL, err)
	}
	if t.Logger != nil {
		t.Logger.Debug("recorded", zap.String("url", req.URL.String()), zap.String("file", dst))
	}
	return resp, nil
}

func writeFile(dst string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, body, 0o644)
}

// MirrorHandler serves recorded responses from dir, standing in for the guide
// service. Requests with no recording get the service's own "no data" reply
// so clients treat them as definitive misses.
func MirrorHandler(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		file := filepath.Join(dir, MirrorFile(c.Request.URL.Path, c.Request.URL.Query()))
		b, err := os.ReadFile(file)
		if err != nil {
			if os.IsNotExist(err) {
				c.JSON(http.StatusOK, gin.H{"code": http.StatusNotFound, "data": nil})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", b)
	}
}
