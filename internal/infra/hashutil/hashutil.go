// Package hashutil computes content digests for catalogs and call arguments.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// JSONDigest returns the hex sha256 of v's JSON encoding. encoding/json sorts
// map keys, so equal maps digest equally.
func JSONDigest(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CatalogETag returns a digest of catalog entries and logs on failure.
func CatalogETag(logger *zap.Logger, entries []domain.ToolCatalogEntry) string {
	return hashWithLogger(logger, "tool_catalog", func() (string, error) {
		return JSONDigest(entries)
	})
}

func hashWithLogger(logger *zap.Logger, label string, fn func() (string, error)) string {
	etag, err := fn()
	if err != nil {
		if logger != nil {
			logger.Warn(fmt.Sprintf("%s hash failed", label), zap.Error(err))
		}
		return ""
	}
	return etag
}
