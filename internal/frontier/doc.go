// Package frontier persists the shared work record in SQLite: every
// discovered item with its status and claim, node liveness records, and
// per-node discovery sessions.
//
// All mutations run through Store.Update, which serializes writers with an
// in-process mutex and a cross-process flock on "<db>.lock" before opening
// an immediate SQLite transaction. Other packages never touch the database
// directly; they receive a *Tx inside an Update or View callback and use its
// typed helpers. The status column makes completed, failed, and claimed
// mutually exclusive by construction.
//
// Schema changes bump schemaVersion; operators delete the database to adopt
// a new schema. The partition scheme version is stored alongside so nodes
// built with a different ownership hash refuse to share a frontier.
package frontier
