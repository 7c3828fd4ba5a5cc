package models

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/chaz8081/vadsplit/internal/config"
)

// CacheKey names the cached artifact for a model URL. The canonical URL maps
// to the plain file name; any other URL gets a short BLAKE2b suffix so
// different models never share a key.
func CacheKey(url, fileName string) string {
	if url == "" || url == config.DefaultModelURL {
		return fileName
	}
	sum := blake2b.Sum256([]byte(url))
	ext := path.Ext(fileName)
	return fmt.Sprintf("%s-%x%s", strings.TrimSuffix(fileName, ext), sum[:6], ext)
}
