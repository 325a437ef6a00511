package server

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// normalizeBasePath turns " api/ " into "/api". The root maps to "" so routes
// mount directly on the engine.
func normalizeBasePath(bp string) string {
	bp = strings.Trim(strings.TrimSpace(bp), "/")
	if bp == "" {
		return ""
	}
	return "/" + bp
}

// validTrackingID reports whether a :id path segment can name a supervised
// process. Tracking ids are "<profile>-<ms>" built from [A-Za-z0-9._-] only.
func validTrackingID(id string) bool {
	if id == "" || strings.Contains(id, "..") {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// validWorkDir accepts an unset working directory or an absolute, clean one.
// A trailing separator is tolerated.
func validWorkDir(dir string) bool {
	if dir == "" {
		return true
	}
	if !filepath.IsAbs(dir) {
		return false
	}
	clean := filepath.Clean(dir)
	if clean == dir {
		return true
	}
	trimmed := strings.TrimRight(dir, string(filepath.Separator))
	return trimmed != "" && clean == trimmed
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
