package frontier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Tx is the handle passed to Update and View callbacks. Every timestamp it
// writes is the single instant captured when the transaction began.
type Tx struct {
	tx       *sql.Tx
	now      time.Time
	readOnly bool
	dirty    bool
}

// Now returns the transaction timestamp.
func (t *Tx) Now() time.Time {
	return t.now
}

func (t *Tx) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	t.dirty = true
	return res, nil
}

const itemColumns = `identifier, seq, source, title, attributes, status, owner_node, claim_start,
	failure_reason, output_path, output_bytes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item       Item
		attributes string
		owner      sql.NullInt64
		claimStart sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	if err := row.Scan(
		&item.Identifier, &item.Seq, &item.Meta.Source, &item.Meta.Title, &attributes,
		&item.Status, &owner, &claimStart,
		&item.FailureReason, &item.OutputPath, &item.OutputBytes, &createdAt, &updatedAt,
	); err != nil {
		return Item{}, err
	}
	if attributes != "" && attributes != "{}" {
		if err := json.Unmarshal([]byte(attributes), &item.Meta.Attributes); err != nil {
			return Item{}, err
		}
	}
	if owner.Valid {
		item.OwnerNode = int(owner.Int64)
	}
	if claimStart.Valid {
		item.ClaimStart = time.Unix(claimStart.Int64, 0)
	}
	item.CreatedAt = time.Unix(createdAt, 0)
	item.UpdatedAt = time.Unix(updatedAt, 0)
	return item, nil
}

func (t *Tx) queryItems(ctx context.Context, op, query string, args ...any) ([]Item, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return items, nil
}

// Item loads one item. The boolean is false when the identifier is unknown.
func (t *Tx) Item(ctx context.Context, identifier string) (Item, bool, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE identifier = ?`, identifier)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, storeErr("load item", err)
	}
	return item, true, nil
}

// InsertItem registers identifier as pending. It reports false, leaving the
// existing row untouched, when the identifier is already known.
func (t *Tx) InsertItem(ctx context.Context, identifier string, meta ItemMeta) (bool, error) {
	attributes := "{}"
	if len(meta.Attributes) > 0 {
		encoded, err := json.Marshal(meta.Attributes)
		if err != nil {
			return false, storeErr("encode attributes", err)
		}
		attributes = string(encoded)
	}
	now := t.now.Unix()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO items (identifier, seq, source, title, attributes, status, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM items), ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT(identifier) DO NOTHING`,
		identifier, meta.Source, meta.Title, attributes, now, now,
	)
	if err != nil {
		return false, storeErr("insert item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("insert item", err)
	}
	if affected > 0 {
		t.dirty = true
	}
	return affected > 0, nil
}

// Claim records node as the owner of identifier starting now.
func (t *Tx) Claim(ctx context.Context, identifier string, node int) error {
	now := t.now.Unix()
	_, err := t.exec(ctx, "claim item", `
		UPDATE items SET status = 'claimed', owner_node = ?, claim_start = ?, updated_at = ?
		WHERE identifier = ? AND status IN ('pending', 'claimed')`,
		node, now, now, identifier,
	)
	return err
}

// Release reverts a claimed item to pending.
func (t *Tx) Release(ctx context.Context, identifier string) error {
	_, err := t.exec(ctx, "release item", `
		UPDATE items SET status = 'pending', owner_node = NULL, claim_start = NULL, updated_at = ?
		WHERE identifier = ? AND status = 'claimed'`,
		t.now.Unix(), identifier,
	)
	return err
}

// Finish moves a non-terminal item to completed or failed. It reports false
// when the item was already terminal.
func (t *Tx) Finish(ctx context.Context, identifier string, c Completion) (bool, error) {
	if !c.Status.Terminal() {
		return false, storeErr("finish item", errors.New("status "+string(c.Status)+" is not terminal"))
	}
	res, err := t.exec(ctx, "finish item", `
		UPDATE items SET status = ?, owner_node = NULL, claim_start = NULL,
			failure_reason = ?, output_path = ?, output_bytes = ?, updated_at = ?
		WHERE identifier = ? AND status IN ('pending', 'claimed')`,
		string(c.Status), c.Reason, c.OutputPath, c.OutputBytes, t.now.Unix(), identifier,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("finish item", err)
	}
	return affected > 0, nil
}

// RequeueFailed moves failed items back to pending, clearing the recorded
// reason. With no identifiers every failed item is requeued.
func (t *Tx) RequeueFailed(ctx context.Context, identifiers ...string) (int64, error) {
	query := `UPDATE items SET status = 'pending', failure_reason = '', updated_at = ? WHERE status = 'failed'`
	args := []any{t.now.Unix()}
	if len(identifiers) > 0 {
		query += ` AND identifier IN (` + placeholders(len(identifiers)) + `)`
		for _, id := range identifiers {
			args = append(args, id)
		}
	}
	res, err := t.exec(ctx, "requeue failed", query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("requeue failed", err)
	}
	return affected, nil
}

// ItemsByStatus lists items with the given statuses in discovery order.
func (t *Tx) ItemsByStatus(ctx context.Context, statuses ...Status) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	return t.queryItems(ctx, "list items", query+` ORDER BY seq`, args...)
}

// Counts tallies items by status.
func (t *Tx) Counts(ctx context.Context) (Counts, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return Counts{}, storeErr("count items", err)
	}
	defer rows.Close()

	var counts Counts
	for rows.Next() {
		var (
			status Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, storeErr("count items", err)
		}
		switch status {
		case StatusPending:
			counts.Pending = n
		case StatusClaimed:
			counts.Claimed = n
		case StatusCompleted:
			counts.Completed = n
		case StatusFailed:
			counts.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return Counts{}, storeErr("count items", err)
	}
	return counts, nil
}

// Node loads one liveness record.
func (t *Tx) Node(ctx context.Context, nodeID int) (NodeRecord, bool, error) {
	var (
		rec        NodeRecord
		lastActive int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT node_id, last_active, instance_id FROM nodes WHERE node_id = ?`, nodeID,
	).Scan(&rec.NodeID, &lastActive, &rec.InstanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return NodeRecord{}, false, nil
	}
	if err != nil {
		return NodeRecord{}, false, storeErr("load node", err)
	}
	rec.LastActive = time.Unix(lastActive, 0)
	return rec, true, nil
}

// Nodes lists every liveness record ordered by node id.
func (t *Tx) Nodes(ctx context.Context) ([]NodeRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT node_id, last_active, instance_id FROM nodes ORDER BY node_id`)
	if err != nil {
		return nil, storeErr("list nodes", err)
	}
	defer rows.Close()

	var nodes []NodeRecord
	for rows.Next() {
		var (
			rec        NodeRecord
			lastActive int64
		)
		if err := rows.Scan(&rec.NodeID, &lastActive, &rec.InstanceID); err != nil {
			return nil, storeErr("list nodes", err)
		}
		rec.LastActive = time.Unix(lastActive, 0)
		nodes = append(nodes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list nodes", err)
	}
	return nodes, nil
}

// TouchNode upserts the liveness record for nodeID at the transaction time.
func (t *Tx) TouchNode(ctx context.Context, nodeID int, instanceID string) error {
	_, err := t.exec(ctx, "touch node", `
		INSERT INTO nodes (node_id, last_active, instance_id) VALUES (?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET last_active = excluded.last_active, instance_id = excluded.instance_id`,
		nodeID, t.now.Unix(), instanceID,
	)
	return err
}

// DeleteNode removes a liveness record.
func (t *Tx) DeleteNode(ctx context.Context, nodeID int) error {
	_, err := t.exec(ctx, "delete node", `DELETE FROM nodes WHERE node_id = ?`, nodeID)
	return err
}

// LastUpdated returns the time of the most recent committed mutation.
func (t *Tx) LastUpdated(ctx context.Context) (time.Time, error) {
	raw, ok, err := t.meta(ctx, metaLastUpdated)
	if err != nil || !ok {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, storeErr("parse last_updated", err)
	}
	return time.Unix(secs, 0), nil
}

func (t *Tx) meta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("read meta", err)
	}
	return value, true, nil
}

func (t *Tx) setMeta(ctx context.Context, key, value string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return storeErr("write meta", err)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
