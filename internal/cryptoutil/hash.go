package cryptoutil

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

// ErrIntegrity is returned when data does not match a published digest
var ErrIntegrity = xerrors.New("integrity mismatch")

// HashEqual performs constant-time comparison of two encoded hashes.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex computes the SHA-256 hash of data as a hex string
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// algorithm strength order for SRI, strongest first
var sriAlgs = []struct {
	name string
	new  func() hash.Hash
}{
	{"sha512", sha512.New},
	{"sha384", sha512.New384},
	{"sha256", sha256.New},
	{"sha1", sha1.New},
}

// VerifySRI checks data against a Subresource Integrity value. Unknown
// algorithms are skipped, an integrity string with no usable entry is an error.
func VerifySRI(data []byte, integrity string) error {
	entries := map[string][]string{}
	for _, tok := range strings.Fields(integrity) {
		alg, digest, ok := strings.Cut(tok, "-")
		if !ok {
			continue
		}
		// drop SRI options ("?foo")
		digest, _, _ = strings.Cut(digest, "?")
		entries[alg] = append(entries[alg], digest)
	}

	for _, a := range sriAlgs {
		want, ok := entries[a.name]
		if !ok {
			continue
		}
		h := a.new()
		h.Write(data)
		got := base64.StdEncoding.EncodeToString(h.Sum(nil))
		for _, w := range want {
			if HashEqual(got, w) {
				return nil
			}
		}
		return xerrors.Markf(ErrIntegrity, "%s digest %s does not match published %s", a.name, got, want[0])
	}
	return xerrors.Markf(ErrIntegrity, "no supported algorithm in integrity %q", integrity)
}

// VerifySHA1Hex checks data against a hex sha1 digest
func VerifySHA1Hex(data []byte, shasum string) error {
	sum := sha1.Sum(data)
	got := hex.EncodeToString(sum[:])
	if !HashEqual(got, strings.ToLower(strings.TrimSpace(shasum))) {
		return xerrors.Markf(ErrIntegrity, "sha1 %s does not match published %s", got, shasum)
	}
	return nil
}

// Verify prefers the SRI value and falls back to the shasum. When neither is
// published there is nothing to check and Verify returns nil.
func Verify(data []byte, integrity, shasum string) error {
	switch {
	case strings.TrimSpace(integrity) != "":
		return VerifySRI(data, integrity)
	case strings.TrimSpace(shasum) != "":
		return VerifySHA1Hex(data, shasum)
	default:
		return nil
	}
}
