package pathsync

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
)

// HashBytes returns the hex MD5 digest of b. MD5 is the change-detection
// fingerprint here, not a security boundary.
func HashBytes(b []byte) string {
	return fmt.Sprintf("%x", md5.Sum(b))
}

// HashFile streams the file at path through MD5 and returns the hex digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
