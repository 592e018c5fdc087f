// Package entropy scores files by Shannon entropy.
//
// calculator.go holds the Calculator, which reads one file into memory and
// returns a FileEntropy. The file is split into fixed-size chunks; each chunk
// gets its own 256-entry frequency table and its own entropy, and the chunk
// values are summed. A file spanning two maximally random chunks therefore
// scores 16.0, not 8.0. Callers comparing scores across files of very
// different sizes should keep that in mind.
//
// Guards run in a fixed order: metadata, size ceiling, directory, read. Each
// failure wraps one of the sentinel errors (ErrMetadataUnavailable,
// ErrFileTooLarge, ErrIsADirectory, ErrReadFailure).
//
// collect.go applies the Calculator over a list of paths, skipping failures
// while keeping them in CollectResult.Skipped so the discovered/scored gap
// can be reported.
package entropy
