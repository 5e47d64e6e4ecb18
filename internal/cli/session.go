package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/lexcache/internal/config"
	"github.com/roach88/lexcache/internal/engine"
	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/model"
	"github.com/roach88/lexcache/internal/store"
	"github.com/roach88/lexcache/internal/telemetry"
)

// session is an engine over the configured database and schema.
type session struct {
	store    *store.Store
	engine   *engine.Engine
	shutdown telemetry.Shutdown
}

// openSession opens the database, compiles the schema, starts tracing and
// turns on the configured bulk properties.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	cfg := opts.Config
	loaded, err := LoadSchema(cfg.Schema)
	if err != nil {
		return nil, err
	}
	reg, err := model.Build(loaded.Schema)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDeclaration, Message: err.Error()}
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("opening %s: %v", cfg.Database, err)}
	}
	tp, shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	eng := engine.New(st, reg,
		engine.WithLogger(opts.Logger),
		engine.WithTracerProvider(tp),
		engine.WithMaxOwnerDepth(cfg.MaxOwnerDepth),
		engine.WithMaxLoadDepth(cfg.MaxLoadDepth),
	)
	s := &session{store: st, engine: eng, shutdown: shutdown}
	if err := s.enableBulk(ctx, cfg.Bulk); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	opts.Logger.Debug("session opened", "session", eng.Session(), "database", cfg.Database, "schema", loaded.Source)
	return s, nil
}

func (s *session) enableBulk(ctx context.Context, bulk []config.BulkProperty) error {
	reg := s.engine.Registry()
	for _, b := range bulk {
		class := ir.ClassName(b.Class)
		tag, ok := reg.FieldTag(class, b.Field)
		if !ok {
			return &LoadError{Code: ErrCodeProperty, Message: fmt.Sprintf("bulk: %s has no field %q", class, b.Field)}
		}
		if err := s.engine.SetBulkMode(ctx, class, tag, true); err != nil {
			return fmt.Errorf("bulk %s.%s: %w", class, b.Field, err)
		}
	}
	return nil
}

// Close flushes traces and closes the database.
func (s *session) Close(ctx context.Context) error {
	return errors.Join(s.shutdown(ctx), s.store.Close())
}
