package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/lexcache/internal/ir"
)

// CreateEntity inserts an unowned entity and returns its reference.
func (s *Store) CreateEntity(ctx context.Context, class ir.ClassName) (ir.EntityRef, error) {
	if class == "" {
		return ir.EntityRef{}, fmt.Errorf("create entity: empty class")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO entities (class) VALUES (?)`, string(class))
	if err != nil {
		return ir.EntityRef{}, fmt.Errorf("create entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ir.EntityRef{}, fmt.Errorf("create entity: %w", err)
	}
	return ir.Real(id), nil
}

// CreateOwned inserts an entity owned by owner and appends it to the
// owner's vector field in the same transaction.
func (s *Store) CreateOwned(ctx context.Context, class ir.ClassName, owner ir.EntityRef, field ir.Tag) (ir.EntityRef, error) {
	if class == "" {
		return ir.EntityRef{}, fmt.Errorf("create owned: empty class")
	}
	if err := s.mustExist(ctx, owner); err != nil {
		return ir.EntityRef{}, fmt.Errorf("create owned: owner: %w", err)
	}

	var created ir.EntityRef
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO entities (class, owner, owner_tag) VALUES (?, ?, ?)
		`, string(class), owner.ID(), int32(field))
		if err != nil {
			return fmt.Errorf("create owned: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("create owned: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vectors (entity, tag, ord, target)
			VALUES (?, ?, (SELECT COALESCE(MAX(ord), -1) + 1 FROM vectors WHERE entity = ? AND tag = ?), ?)
		`, owner.ID(), int32(field), owner.ID(), int32(field), id)
		if err != nil {
			return fmt.Errorf("create owned: append: %w", err)
		}
		created = ir.Real(id)
		return nil
	})
	if err != nil {
		return ir.EntityRef{}, err
	}
	return created, nil
}

// DeleteEntity removes e. Owned entities and every row pointing at a
// removed entity go with it through foreign key cascades.
func (s *Store) DeleteEntity(ctx context.Context, e ir.EntityRef) error {
	if err := requireReal(e); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, e.ID())
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete entity %s: %w", e, ErrNotFound)
	}
	return nil
}

// WriteScalar stores an atomic value. Writing IRNull clears the field.
func (s *Store) WriteScalar(ctx context.Context, e ir.EntityRef, tag ir.Tag, v ir.IRValue) error {
	if err := s.mustExist(ctx, e); err != nil {
		return fmt.Errorf("write scalar: %w", err)
	}
	if _, isNull := v.(ir.IRNull); isNull || v == nil {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM scalars WHERE entity = ? AND tag = ?
		`, e.ID(), int32(tag)); err != nil {
			return fmt.Errorf("write scalar: %w", err)
		}
		return nil
	}
	data, err := marshalScalar(v)
	if err != nil {
		return fmt.Errorf("write scalar: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scalars (entity, tag, value) VALUES (?, ?, ?)
		ON CONFLICT(entity, tag) DO UPDATE SET value = excluded.value
	`, e.ID(), int32(tag), data)
	if err != nil {
		return fmt.Errorf("write scalar: %w", err)
	}
	return nil
}

// WriteText stores one alternative of a text field. Writing "" clears it.
func (s *Store) WriteText(ctx context.Context, e ir.EntityRef, tag ir.Tag, sub ir.SubKey, text string) error {
	if err := s.mustExist(ctx, e); err != nil {
		return fmt.Errorf("write text: %w", err)
	}
	var err error
	if text == "" {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM texts WHERE entity = ? AND tag = ? AND ws = ?
		`, e.ID(), int32(tag), string(sub))
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO texts (entity, tag, ws, text) VALUES (?, ?, ?, ?)
			ON CONFLICT(entity, tag, ws) DO UPDATE SET text = excluded.text
		`, e.ID(), int32(tag), string(sub), text)
	}
	if err != nil {
		return fmt.Errorf("write text: %w", err)
	}
	return nil
}

// WriteVector replaces the contents of a vector field. Every target must
// be a live real entity.
func (s *Store) WriteVector(ctx context.Context, e ir.EntityRef, tag ir.Tag, refs []ir.EntityRef) error {
	if err := s.mustExist(ctx, e); err != nil {
		return fmt.Errorf("write vector: %w", err)
	}
	for _, r := range refs {
		if err := s.mustExist(ctx, r); err != nil {
			return fmt.Errorf("write vector: target: %w", err)
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vectors WHERE entity = ? AND tag = ?
		`, e.ID(), int32(tag)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
		for i, r := range refs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO vectors (entity, tag, ord, target) VALUES (?, ?, ?, ?)
			`, e.ID(), int32(tag), i, r.ID()); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
		return nil
	})
}
