// Package runtime manages per-identity execution contexts: heavyweight,
// lazily-built objects derived from a single immutable configuration
// template. It guarantees at-most-once construction per identity, bounds the
// number of live identities and in-flight operations, and evicts idle
// contexts without racing against in-flight use.
package runtime
