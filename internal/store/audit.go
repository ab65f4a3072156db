package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/lattice/internal/model"
)

// AppendLog writes an audit entry. The subject must exist as a record of
// the kind it names.
func (t *Tx) AppendLog(ctx context.Context, l model.Log) error {
	if l.ID == "" {
		return model.NewValidationError(model.ReasonRequired, "", "", "id", "log id is required")
	}
	ok, err := t.Exists(ctx, l.Subject.Kind, l.Subject.ID)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewValidationError(model.ReasonDanglingReference, l.Subject.Kind, l.Subject.ID, "subject", "log subject does not exist")
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO logs (id, user_id, public, created, subject_id, subject_kind, text, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, nullString(l.UserID), l.Public, toNanos(l.Created), l.Subject.ID, string(l.Subject.Kind), l.Text, l.Source)
	if err != nil {
		return translateWrite(err, "append log", l.Subject.Kind, l.Subject.ID)
	}
	return nil
}

// Logs returns the entries of one subject, newest first.
// Returns an empty slice (not nil) if there are none.
func (t *Tx) Logs(ctx context.Context, subject model.Subject) ([]model.Log, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, user_id, public, created, subject_id, subject_kind, text, source
		FROM logs
		WHERE subject_id = ? AND subject_kind = ?
		ORDER BY created DESC, id DESC
	`, subject.ID, string(subject.Kind))
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	out := []model.Log{}
	for rows.Next() {
		var (
			l       model.Log
			userID  sql.NullString
			created int64
			kind    string
		)
		if err := rows.Scan(&l.ID, &userID, &l.Public, &created, &l.Subject.ID, &kind, &l.Text, &l.Source); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		l.UserID = userID.String
		l.Created = fromNanos(created)
		l.Subject.Kind = model.Kind(kind)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	return out, nil
}

// DeleteLogs removes every entry of one subject.
func (t *Tx) DeleteLogs(ctx context.Context, subject model.Subject) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM logs WHERE subject_id = ? AND subject_kind = ?`,
		subject.ID, string(subject.Kind))
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return res.RowsAffected()
}

// InsertLogin records a session. Tokens are unique.
func (t *Tx) InsertLogin(ctx context.Context, l model.Login) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO login (id, user_id, token, login, created)
		VALUES (?, ?, ?, ?, ?)
	`, l.ID, l.UserID, l.Token, toNanos(l.Login), toNanos(l.Created))
	if err != nil {
		return translateWrite(err, "insert login", model.KindUser, l.UserID)
	}
	return nil
}

// LoginByToken resolves a session token.
func (t *Tx) LoginByToken(ctx context.Context, token string) (model.Login, error) {
	var (
		l              model.Login
		login, created int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, token, login, created FROM login WHERE token = ?
	`, token).Scan(&l.ID, &l.UserID, &l.Token, &login, &created)
	if err != nil {
		return model.Login{}, notFound(err, "login", "")
	}
	l.Login = fromNanos(login)
	l.Created = fromNanos(created)
	return l, nil
}

// Logins returns a user's session history, newest first.
func (t *Tx) Logins(ctx context.Context, userID string) ([]model.Login, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, user_id, token, login, created FROM login
		WHERE user_id = ?
		ORDER BY login DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query logins: %w", err)
	}
	defer rows.Close()

	out := []model.Login{}
	for rows.Next() {
		var (
			l              model.Login
			login, created int64
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Token, &login, &created); err != nil {
			return nil, fmt.Errorf("scan login: %w", err)
		}
		l.Login = fromNanos(login)
		l.Created = fromNanos(created)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query logins: %w", err)
	}
	return out, nil
}
