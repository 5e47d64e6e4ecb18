package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lexcache/internal/ir"
)

// ClassOf returns the exact class of e.
func (s *Store) ClassOf(ctx context.Context, e ir.EntityRef) (ir.ClassName, error) {
	if err := requireReal(e); err != nil {
		return "", err
	}
	var class string
	err := s.db.QueryRowContext(ctx, `SELECT class FROM entities WHERE id = ?`, e.ID()).Scan(&class)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("class of %s: %w", e, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("class of %s: %w", e, err)
	}
	return ir.ClassName(class), nil
}

// Exists reports whether e is a live durable entity. Placeholders never exist.
func (s *Store) Exists(ctx context.Context, e ir.EntityRef) (bool, error) {
	if !e.IsReal() {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE id = ?`, e.ID()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", e, err)
	}
	return n > 0, nil
}

func (s *Store) mustExist(ctx context.Context, e ir.EntityRef) error {
	if err := requireReal(e); err != nil {
		return err
	}
	ok, err := s.Exists(ctx, e)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", e, ErrNotFound)
	}
	return nil
}

// ReadScalar returns the stored atomic value, or IRNull when unwritten.
func (s *Store) ReadScalar(ctx context.Context, e ir.EntityRef, tag ir.Tag) (ir.IRValue, error) {
	if err := s.mustExist(ctx, e); err != nil {
		return nil, fmt.Errorf("read scalar: %w", err)
	}
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM scalars WHERE entity = ? AND tag = ?
	`, e.ID(), int32(tag)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.IRNull{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scalar: %w", err)
	}
	return unmarshalScalar(data)
}

// ReadVector returns the references in tag ordered by position.
// Returns an empty slice (not nil) when the vector is unwritten.
func (s *Store) ReadVector(ctx context.Context, e ir.EntityRef, tag ir.Tag) ([]ir.EntityRef, error) {
	if err := s.mustExist(ctx, e); err != nil {
		return nil, fmt.Errorf("read vector: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT target FROM vectors
		WHERE entity = ? AND tag = ?
		ORDER BY ord ASC
	`, e.ID(), int32(tag))
	if err != nil {
		return nil, fmt.Errorf("read vector: %w", err)
	}
	return scanRefs(rows, "read vector")
}

// ReadText returns one alternative of a text field, "" when unwritten.
func (s *Store) ReadText(ctx context.Context, e ir.EntityRef, tag ir.Tag, sub ir.SubKey) (string, error) {
	if err := s.mustExist(ctx, e); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	var text string
	err := s.db.QueryRowContext(ctx, `
		SELECT text FROM texts WHERE entity = ? AND tag = ? AND ws = ?
	`, e.ID(), int32(tag), string(sub)).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return text, nil
}

// TextAlternatives returns the sub keys holding a value, sorted bytewise.
func (s *Store) TextAlternatives(ctx context.Context, e ir.EntityRef, tag ir.Tag) ([]ir.SubKey, error) {
	if err := s.mustExist(ctx, e); err != nil {
		return nil, fmt.Errorf("text alternatives: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ws FROM texts
		WHERE entity = ? AND tag = ?
		ORDER BY ws COLLATE BINARY ASC
	`, e.ID(), int32(tag))
	if err != nil {
		return nil, fmt.Errorf("text alternatives: %w", err)
	}
	defer rows.Close()

	subs := []ir.SubKey{}
	for rows.Next() {
		var ws string
		if err := rows.Scan(&ws); err != nil {
			return nil, fmt.Errorf("text alternatives: scan: %w", err)
		}
		subs = append(subs, ir.SubKey(ws))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("text alternatives: iterate: %w", err)
	}
	return subs, nil
}

// OwnerOf returns the owner and owning field of e.
func (s *Store) OwnerOf(ctx context.Context, e ir.EntityRef) (ir.EntityRef, ir.Tag, bool, error) {
	if err := requireReal(e); err != nil {
		return ir.EntityRef{}, ir.NoTag, false, err
	}
	var owner, tag sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, owner_tag FROM entities WHERE id = ?
	`, e.ID()).Scan(&owner, &tag)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.EntityRef{}, ir.NoTag, false, fmt.Errorf("owner of %s: %w", e, ErrNotFound)
	}
	if err != nil {
		return ir.EntityRef{}, ir.NoTag, false, fmt.Errorf("owner of %s: %w", e, err)
	}
	if !owner.Valid {
		return ir.EntityRef{}, ir.NoTag, false, nil
	}
	return ir.Real(owner.Int64), ir.Tag(tag.Int64), true, nil
}

// Referrers returns entities whose vector field tag contains target, in id order.
func (s *Store) Referrers(ctx context.Context, target ir.EntityRef, tag ir.Tag) ([]ir.EntityRef, error) {
	if !target.IsReal() {
		return []ir.EntityRef{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT entity FROM vectors
		WHERE target = ? AND tag = ?
		ORDER BY entity ASC
	`, target.ID(), int32(tag))
	if err != nil {
		return nil, fmt.Errorf("referrers: %w", err)
	}
	return scanRefs(rows, "referrers")
}

// EntitiesOf returns every entity of exactly class, in id order.
func (s *Store) EntitiesOf(ctx context.Context, class ir.ClassName) ([]ir.EntityRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM entities WHERE class = ? ORDER BY id ASC
	`, string(class))
	if err != nil {
		return nil, fmt.Errorf("entities of %s: %w", class, err)
	}
	return scanRefs(rows, "entities of "+string(class))
}

// scanRefs drains a single-column id result set and closes rows.
func scanRefs(rows *sql.Rows, op string) ([]ir.EntityRef, error) {
	defer rows.Close()

	refs := []ir.EntityRef{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		refs = append(refs, ir.Real(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return refs, nil
}
