package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/lattice/internal/model"
)

// translateWrite maps SQLite constraint failures on insert/update to the
// model error taxonomy. Other errors are wrapped unchanged.
func translateWrite(err error, op string, kind model.Kind, id string) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%s %s: %w", op, kind, err)
	}

	msg := se.Error()
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		reason := model.ReasonDuplicateValue
		if strings.HasSuffix(msg, ".name") || strings.Contains(msg, ".name,") {
			reason = model.ReasonDuplicateName
		}
		return &model.Error{Code: model.CodeValidation, Reason: reason, Kind: kind, ID: id, Field: constraintColumn(msg), Message: "value already taken", Err: err}
	case sqlite3.ErrConstraintForeignKey:
		return &model.Error{Code: model.CodeValidation, Reason: model.ReasonDanglingReference, Kind: kind, ID: id, Message: "reference to a missing record", Err: err}
	case sqlite3.ErrConstraintNotNull:
		return &model.Error{Code: model.CodeValidation, Reason: model.ReasonRequired, Kind: kind, ID: id, Field: constraintColumn(msg), Message: "required value missing", Err: err}
	case sqlite3.ErrConstraintCheck:
		return &model.Error{Code: model.CodeValidation, Reason: model.ReasonInvalidValue, Kind: kind, ID: id, Message: "check constraint failed", Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, kind, err)
}

// translateDelete maps a foreign key failure on delete to a cascade
// conflict. The integrity enforcer normally catches these first.
func translateDelete(err error, kind model.Kind, id string) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return &model.Error{
			Code:    model.CodeCascadeConflict,
			Reason:  model.ReasonRestricted,
			Kind:    kind,
			ID:      id,
			Message: "still referenced",
			Err:     err,
		}
	}
	return fmt.Errorf("delete %s: %w", kind, err)
}

func notFound(err error, kind model.Kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewNotFoundError(kind, id)
	}
	return fmt.Errorf("read %s: %w", kind, err)
}

// constraintColumn extracts "email" from "UNIQUE constraint failed: users.email".
func constraintColumn(msg string) string {
	_, cols, ok := strings.Cut(msg, "failed: ")
	if !ok {
		return ""
	}
	first, _, _ := strings.Cut(cols, ",")
	if _, col, ok := strings.Cut(first, "."); ok {
		return strings.TrimSpace(col)
	}
	return ""
}
