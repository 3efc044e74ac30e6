// Package bundle builds starter project archives.
//
// A Builder extracts every configured package concurrently, waits for all of
// them, and lays the results out according to a Mode:
//
//   - Full keeps every package file under modules/<package>/ and adds editor
//     settings.
//   - Minimal keeps only the recognized library files, flattened into lib/.
//
// The same Layout decides where files go and what index.html references, so
// the page always points at files that the archive places.
package bundle
