package davsync

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

const hashChunkSize = 32 * 1024

// FileDigest streams the file at path through SHA-256 and returns the lowercase
// hex digest. Only content matters: timestamps and permissions are ignored.
func FileDigest(path string) (string, error) {
	digest, _, err := fileDigestSize(path)
	return digest, err
}

// fileDigestSize also returns how many bytes were hashed, so size and digest
// always describe the same content.
func fileDigestSize(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, ioErr("open", path, err)
	}
	defer file.Close()

	digest, n, err := readerDigest(file)
	if err != nil {
		return "", 0, ioErr("hash", path, err)
	}
	return digest, n, nil
}

func readerDigest(r io.Reader) (string, int64, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// BytesDigest is the digest of an in-memory payload.
func BytesDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
