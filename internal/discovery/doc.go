// Package discovery registers newly found items in the frontier and keeps
// each node's resumable discovery session.
//
// Identifiers are canonicalized before they touch the store so that two
// spellings of the same URL deduplicate. A session is keyed by the
// fingerprint of its sorted, canonical source set: beginning a session with
// the same sources resumes the previous discovered list, and any change
// starts a fresh one. The frontier itself is never pruned.
package discovery
