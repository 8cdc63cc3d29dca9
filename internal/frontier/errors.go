package frontier

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreIO marks any failure to read or write the shared state.
	ErrStoreIO = errors.New("frontier store i/o")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrPartitionVersion indicates the store was written under a different partition scheme.
	ErrPartitionVersion = errors.New("partition version mismatch")
	// ErrLockTimeout indicates the cross-process lock was not acquired in time.
	ErrLockTimeout = errors.New("frontier lock timeout")
)

// StoreError wraps a persistence failure with the operation that hit it.
// errors.Is(err, ErrStoreIO) holds for every StoreError.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("frontier %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreIO }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StoreError
	if errors.As(err, &existing) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
