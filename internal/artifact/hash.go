// Package artifact builds simulation components from model sources and keeps
// the results in a content-addressed cache.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// KeyLength is the number of hex characters kept from the digest. Short
// enough for directory names; collisions stay negligible for a build cache.
const KeyLength = 16

// Key identifies a build output by content: model bytes, class name, build
// kind and extra options. Timestamps never enter it.
type Key string

func (k Key) String() string { return string(k) }

// HashText returns the hex SHA-256 of s.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashReader streams r through SHA-256.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the hex SHA-256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, err := HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum, nil
}

// ComputeKey combines a file digest with the build parameters. The outer hash
// keeps the raw file digest out of the key.
func ComputeKey(fileDigest, className string, kind BuildKind, extra string) Key {
	combined := strings.Join([]string{fileDigest, className, string(kind), extra}, "|")
	return Key(HashText(combined)[:KeyLength])
}

// BuildExtra encodes the free-form extra text and the compiler options as a
// JSON array, so no choice of separator inside either field can make two
// different builds share a key.
func BuildExtra(extra string, options []string) string {
	data, _ := json.Marshal(append([]string{extra}, options...))
	return string(data)
}

// KeyForModel hashes the model file and derives its key.
func KeyForModel(modelPath, className string, kind BuildKind, extra string) (Key, error) {
	digest, err := HashFile(modelPath)
	if err != nil {
		return "", err
	}
	return ComputeKey(digest, className, kind, extra), nil
}
