package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"thumbgen/internal/thumbnails"
)

const (
	staticPrefix   = "/static/output"
	downloadPrefix = "/api/download"
)

// Signer issues download URLs for exported files and verifies signed
// download requests. With signing disabled it issues static URLs instead.
type Signer struct {
	secret    []byte
	ttl       time.Duration
	outputDir string
	signed    bool
	now       func() time.Time
}

// New creates a signer for files under outputDir. ttl is the signed-URL
// validity window; with signed false Issue returns static paths and Verify
// is never consulted.
func New(secret string, ttl time.Duration, outputDir string, signed bool) *Signer {
	return &Signer{
		secret:    []byte(secret),
		ttl:       ttl,
		outputDir: outputDir,
		signed:    signed,
		now:       time.Now,
	}
}

// Issue builds the download URL for an exported file name.
func (s *Signer) Issue(fileName string) string {
	if !s.signed {
		return staticPrefix + "/" + fileName
	}
	expires := s.now().Add(s.ttl).Unix()
	return fmt.Sprintf("%s/%s?expires=%d&signature=%s",
		downloadPrefix, fileName, expires, s.signature(fileName, expires))
}

// Verify checks a download token and returns the resolved file path. Checks
// run in a fixed order, short-circuiting on the first failure: path safety
// before any filesystem access, then expiry, then a constant-time signature
// comparison, then file existence.
func (s *Signer) Verify(fileName string, expires int64, signature string) (string, error) {
	filePath, err := s.resolve(fileName)
	if err != nil {
		return "", err
	}
	if s.now().Unix() > expires {
		return "", thumbnails.ErrExpired
	}
	expected := s.signature(fileName, expires)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", thumbnails.ErrInvalidSignature
	}
	if _, err := os.Stat(filePath); err != nil {
		return "", thumbnails.ErrNotFound
	}
	return filePath, nil
}

// signature computes HMAC-SHA256(secret, "fileName:expires") as hex.
func (s *Signer) signature(fileName string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", fileName, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve rejects anything that is not a bare file name inside the output
// directory.
func (s *Signer) resolve(fileName string) (string, error) {
	if fileName == "" ||
		strings.ContainsAny(fileName, `/\`) ||
		fileName != filepath.Base(filepath.Clean(fileName)) {
		return "", thumbnails.ErrPathTraversal
	}
	filePath := filepath.Join(s.outputDir, fileName)
	rel, err := filepath.Rel(s.outputDir, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", thumbnails.ErrPathTraversal
	}
	return filePath, nil
}
