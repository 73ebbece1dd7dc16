package marrow

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Structure errors.
var (
	// ErrNotAModel is returned when a name does not refer to a registered model.
	ErrNotAModel = errors.New("not a registered model")

	// ErrMissingTable is returned when a model declares no table.
	ErrMissingTable = errors.New("model declares no table")

	// ErrMissingProperty is returned when no property matches a key.
	ErrMissingProperty = errors.New("missing property")

	// ErrInvalidColumn is returned when a property is not a usable column.
	ErrInvalidColumn = errors.New("invalid column")

	// ErrInvalidMacro is returned when a macro declaration has no callback.
	ErrInvalidMacro = errors.New("invalid macro declaration")

	// ErrInvalidRelation is returned when a relation declaration is unusable.
	ErrInvalidRelation = errors.New("invalid relation declaration")

	// ErrInvalidCaster is returned when a caster name resolves to nothing.
	ErrInvalidCaster = errors.New("unknown caster")

	// ErrMissingRelationImplementation is returned for a relation kind with no
	// built-in resolver and no registered factory.
	ErrMissingRelationImplementation = errors.New("no relation implementation for kind")

	// ErrMissingDiscriminator is returned when a polymorphic row lacks a
	// usable discriminator value.
	ErrMissingDiscriminator = errors.New("discriminator missing from row")

	// ErrConnectionFailed wraps connection resolution failures.
	ErrConnectionFailed = errors.New("connection resolution failed")
)

// Relation errors.
var (
	// ErrReferenceModelMissing is returned when a through relation cannot
	// determine its target or linking model.
	ErrReferenceModelMissing = errors.New("reference model missing")
)

// Instance errors.
var (
	// ErrImmutableViolation is returned for writes to primary keys of
	// persisted instances, immutable columns, macros and read-only relations.
	ErrImmutableViolation = errors.New("immutable violation")

	// ErrNotFound is returned when a lookup by primary key yields nothing.
	ErrNotFound = errors.New("record not found")

	// ErrUniqueViolation is returned when a unique constraint is violated.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated.
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated.
	ErrNotNullViolation = errors.New("not null constraint violation")
)

// ReadError wraps a failure while resolving a property read.
type ReadError struct {
	Property string
	Err      error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("read failed for property %q: %v", e.Property, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps a failure while applying a property write.
type WriteError struct {
	Property string
	Err      error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed for property %q: %v", e.Property, e.Err)
}

// Unwrap returns the underlying cause.
func (e *WriteError) Unwrap() error { return e.Err }

func readFailed(property string, err error) error {
	if err == nil {
		return nil
	}
	return &ReadError{Property: property, Err: err}
}

func writeFailed(property string, err error) error {
	if err == nil {
		return nil
	}
	return &WriteError{Property: property, Err: err}
}

// ConvertDBError maps driver-level errors to the typed taxonomy, preserving
// the original as the cause.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.Detail)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", ErrCheckViolation, pgErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: column %s", ErrNotNullViolation, pgErr.ColumnName)
		}
	}

	return err
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsImmutableViolation returns true if the error is ErrImmutableViolation.
func IsImmutableViolation(err error) bool {
	return errors.Is(err, ErrImmutableViolation)
}
