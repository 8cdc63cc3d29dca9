package frontier

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

const (
	metaPartitionVersion = "partition_version"
	metaLastUpdated      = "last_updated"
)

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return storeErr("check schema_version table", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return storeErr("read schema version", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database %s has version %d, expected %d (delete the database to start over)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
	return s.checkPartitionVersion(ctx)
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin schema tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Another process may have created the schema between our check and BEGIN IMMEDIATE.
	var tableExists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists); err != nil {
		return storeErr("recheck schema_version table", err)
	}
	if tableExists > 0 {
		_ = tx.Rollback()
		return s.initSchema(ctx)
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return storeErr("create schema", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return storeErr("record schema version", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?), (?, ?)",
		metaPartitionVersion, strconv.Itoa(s.partitionVersion),
		metaLastUpdated, strconv.FormatInt(s.clock.Now().Unix(), 10),
	); err != nil {
		return storeErr("record meta", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit schema", err)
	}
	return nil
}

func (s *Store) checkPartitionVersion(ctx context.Context) error {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaPartitionVersion).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: database %s has no partition version", ErrPartitionVersion, s.path)
	}
	if err != nil {
		return storeErr("read partition version", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil || version != s.partitionVersion {
		return fmt.Errorf("%w: database %s uses partition scheme %q, this build uses %d",
			ErrPartitionVersion, s.path, raw, s.partitionVersion)
	}
	return nil
}
