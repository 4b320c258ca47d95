package stage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
)

// fingerprint returns a stable, canonicalised hash over v, used as an
// artifact cache key: keys must be stable fingerprints over normalised
// input, never a serialised object address.
func fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// templateStem returns the template file's natural key: its filename
// without extension.
func templateStem(templateRef string) string {
	base := filepath.Base(templateRef)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func combineFingerprints(a, b string) string {
	sum := sha256.Sum256([]byte(a + "|" + b))
	return hex.EncodeToString(sum[:])
}
