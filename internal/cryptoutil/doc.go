// Package cryptoutil verifies downloaded package tarballs against the
// digests published by the registry.
//
// Two forms are understood:
//   - Subresource Integrity strings ("sha512-<base64>"), possibly several
//     space separated, the strongest supported algorithm is checked
//   - legacy hex sha1 shasums
//
// Comparisons are constant time.
package cryptoutil
