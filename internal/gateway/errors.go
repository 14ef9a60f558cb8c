package gateway

import (
	"errors"
	"fmt"

	"github.com/nerrad567/doorgate/internal/record"
)

var (
	// ErrStoreWrite is matched by every *StoreWriteError.
	ErrStoreWrite = errors.New("gateway: store write failed")

	// ErrInvalidRecord is returned when a Routed value carries no record
	// for its schema.
	ErrInvalidRecord = errors.New("gateway: routed record is empty or inconsistent")
)

// StoreWriteError is an insert failure other than a uniqueness violation.
type StoreWriteError struct {
	Schema record.Schema
	Err    error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("gateway: writing %s record: %v", e.Schema, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrStoreWrite while Unwrap exposes the driver error.
func (e *StoreWriteError) Is(target error) bool {
	return target == ErrStoreWrite
}
