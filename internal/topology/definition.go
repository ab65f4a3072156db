package topology

import (
	"context"
	"slices"

	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

// SaveDefinition rewrites the code of a flow's file and appends an
// immutable Version snapshot of it. Version stamps strictly increase per
// file even when the clock does not.
func SaveDefinition(ctx context.Context, tx *store.Tx, ids model.IDGenerator, flowID, code string) (*model.Version, error) {
	rec, err := tx.Get(ctx, model.KindFlow, flowID)
	if err != nil {
		return nil, err
	}
	flow := rec.(*model.Flow)

	rec, err = tx.Get(ctx, model.KindFile, flow.FileID)
	if err != nil {
		return nil, err
	}
	file := rec.(*model.File)
	file.Code = code
	if err := tx.Update(ctx, file); err != nil {
		return nil, err
	}

	history, err := Versions(ctx, tx, file.ID)
	if err != nil {
		return nil, err
	}
	now := tx.Now()
	stamp := now
	if n := len(history); n > 0 && !stamp.After(history[n-1].Version) {
		stamp = history[n-1].Version.Add(1)
	}

	v := &model.Version{
		Base: model.Base{
			ID:          ids.NewID(),
			Name:        flow.Name,
			Owner:       file.Owner,
			Status:      model.DefaultStatus,
			Enabled:     true,
			Created:     now,
			LastUpdated: now,
		},
		Flow:    flow.Name,
		Digest:  model.DefinitionDigest(code),
		Version: stamp,
		FileID:  file.ID,
	}
	if err := tx.Insert(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Versions returns the snapshots of a file ordered by version stamp,
// oldest first.
func Versions(ctx context.Context, tx *store.Tx, fileID string) ([]*model.Version, error) {
	recs, err := tx.ListBy(ctx, model.KindVersion, "file_id", fileID, store.OldestFirst)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Version, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.(*model.Version))
	}
	slices.SortStableFunc(out, func(a, b *model.Version) int {
		return a.Version.Compare(b.Version)
	})
	return out, nil
}
