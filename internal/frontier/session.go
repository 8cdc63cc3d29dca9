package frontier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Session loads the discovery session header for nodeID.
func (t *Tx) Session(ctx context.Context, nodeID int) (SessionRecord, bool, error) {
	var (
		rec       SessionRecord
		sources   string
		startedAt int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT node_id, session_id, fingerprint, sources, started_at
		FROM discovery_sessions WHERE node_id = ?`, nodeID,
	).Scan(&rec.NodeID, &rec.SessionID, &rec.Fingerprint, &sources, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, storeErr("load session", err)
	}
	if err := json.Unmarshal([]byte(sources), &rec.Sources); err != nil {
		return SessionRecord{}, false, storeErr("decode session sources", err)
	}
	rec.StartedAt = time.Unix(startedAt, 0)
	return rec, true, nil
}

// ReplaceSession installs rec as the node's session and discards the
// previous session's discovered list. Items themselves are never removed.
func (t *Tx) ReplaceSession(ctx context.Context, rec SessionRecord) error {
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return storeErr("encode session sources", err)
	}
	if _, err := t.exec(ctx, "clear session items", `DELETE FROM session_items WHERE node_id = ?`, rec.NodeID); err != nil {
		return err
	}
	_, err = t.exec(ctx, "replace session", `
		INSERT INTO discovery_sessions (node_id, session_id, fingerprint, sources, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			session_id = excluded.session_id,
			fingerprint = excluded.fingerprint,
			sources = excluded.sources,
			started_at = excluded.started_at`,
		rec.NodeID, rec.SessionID, rec.Fingerprint, string(sources), t.now.Unix(),
	)
	return err
}

// AppendSessionItem adds identifier to the end of the node's session list.
// It reports false when the identifier is already listed.
func (t *Tx) AppendSessionItem(ctx context.Context, nodeID int, identifier, source string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO session_items (node_id, position, identifier, source)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM session_items WHERE node_id = ?), ?, ?)
		ON CONFLICT(node_id, identifier) DO NOTHING`,
		nodeID, nodeID, identifier, source,
	)
	if err != nil {
		return false, storeErr("append session item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("append session item", err)
	}
	if affected > 0 {
		t.dirty = true
	}
	return affected > 0, nil
}

// SessionEntries returns the node's session list in discovery order joined
// with each item's current state.
func (t *Tx) SessionEntries(ctx context.Context, nodeID int) ([]SessionEntry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT s.position, s.source,
			i.identifier, i.seq, i.source, i.title, i.attributes, i.status, i.owner_node, i.claim_start,
			i.failure_reason, i.output_path, i.output_bytes, i.created_at, i.updated_at
		FROM session_items s JOIN items i ON i.identifier = s.identifier
		WHERE s.node_id = ? ORDER BY s.position`, nodeID)
	if err != nil {
		return nil, storeErr("list session items", err)
	}
	defer rows.Close()

	var entries []SessionEntry
	for rows.Next() {
		var entry SessionEntry
		item, err := scanItem(prefixedScanner{row: rows, prefix: []any{&entry.Position, &entry.Source}})
		if err != nil {
			return nil, storeErr("list session items", err)
		}
		entry.Item = item
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list session items", err)
	}
	return entries, nil
}

// SessionSourceCount counts the node's session items discovered from source.
func (t *Tx) SessionSourceCount(ctx context.Context, nodeID int, source string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM session_items WHERE node_id = ? AND source = ?`, nodeID, source,
	).Scan(&n)
	if err != nil {
		return 0, storeErr("count session source", err)
	}
	return n, nil
}

// prefixedScanner lets scanItem read rows that carry extra leading columns.
type prefixedScanner struct {
	row    rowScanner
	prefix []any
}

func (p prefixedScanner) Scan(dest ...any) error {
	return p.row.Scan(append(append([]any(nil), p.prefix...), dest...)...)
}
