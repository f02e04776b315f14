package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BuildResponseKey builds a ResponseKey from:
//   - route, a short name of the upstream call ("data.list"),
//   - host and path of the upstream request,
//   - versionID (bridge version for invalidation).
func BuildResponseKey(route, host, path, versionID string) ResponseKey {
	normalized := "host:" + strings.TrimRight(strings.TrimSpace(host), "/") + "|path:" + path

	sum := sha256.Sum256([]byte(normalized))

	return ResponseKey{
		Route:     strings.TrimSpace(route),
		VersionID: strings.TrimSpace(versionID),
		Hash:      hex.EncodeToString(sum[:]),
	}
}
