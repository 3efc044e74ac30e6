// Package tarball reads published package archives.
//
// Decode turns a tar (or gzip compressed tar) buffer into a lazy sequence of
// regular-file entries. Filter decides which of those entries belong in a
// package file collection and under what path.
package tarball
