package core

import (
	"context"

	"github.com/roach88/lattice/internal/authz"
	"github.com/roach88/lattice/internal/model"
)

// AppendLog attaches an audit entry to any record.
func (s *Service) AppendLog(ctx context.Context, subject model.Subject, text, source string, public bool) (model.Log, error) {
	var out model.Log
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpUpdate, subject.Kind, subject.ID); err != nil {
			return err
		}
		var err error
		out, err = s.writeLog(ctx, o, subject, text, source, public)
		return err
	})
	return out, err
}

func (s *Service) writeLog(ctx context.Context, o *txn, subject model.Subject, text, source string, public bool) (model.Log, error) {
	l := model.Log{
		ID:      s.ids.NewID(),
		UserID:  o.actor,
		Public:  public,
		Created: o.tx.Now(),
		Subject: subject,
		Text:    text,
		Source:  source,
	}
	if err := o.tx.AppendLog(ctx, l); err != nil {
		return model.Log{}, err
	}
	return l, nil
}

// Logs returns the audit entries of one record, newest first.
func (s *Service) Logs(ctx context.Context, subject model.Subject) ([]model.Log, error) {
	var out []model.Log
	err := s.run(ctx, func(o *txn) error {
		err := s.authorize(ctx, o, authz.Resource{Kind: subject.Kind, ID: subject.ID}, "READ_LOG", model.RightRead)
		if err != nil {
			return err
		}
		out, err = o.tx.Logs(ctx, subject)
		return err
	})
	return out, err
}
