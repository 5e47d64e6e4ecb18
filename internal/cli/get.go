package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lexcache/internal/engine"
	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/store"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Entity   string
	Property string
	WS       string
}

// GetResult is the value read by the get command.
type GetResult struct {
	Entity   string       `json:"entity"`
	Class    ir.ClassName `json:"class"`
	Property string       `json:"property"`
	WS       string       `json:"ws,omitempty"`
	Value    any          `json:"value"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Read a property of a stored entity",
		Long: `Read one property, raw or computed, of an entity in the
configured database. Multi-text properties take a writing system.

Examples:
  lexcache get --entity r:12 --property WordCount
  lexcache get --entity r:40 --property AllGlosses --ws en --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Entity, "entity", "", "entity reference (r:<id>)")
	cmd.Flags().StringVar(&opts.Property, "property", "", "field name")
	cmd.Flags().StringVar(&opts.WS, "ws", "", "writing system for multi-text properties")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("property")

	return cmd
}

func runGet(ctx context.Context, opts *GetOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	fail := func(code string, err error) error {
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "get failed", err)
	}

	ref, err := ir.ParseEntityRef(opts.Entity)
	if err != nil {
		return fail(ErrCodeEntity, err)
	}
	if !ref.IsReal() {
		return fail(ErrCodeEntity, fmt.Errorf("%s is not a stored entity", ref))
	}

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		loadErr := convertCompileError(err)
		return fail(loadErr.Code, loadErr)
	}
	defer func() {
		if err := s.Close(ctx); err != nil {
			opts.Logger.Warn("closing session", "error", err)
		}
	}()

	class, err := s.engine.ClassOf(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(ErrCodeEntity, fmt.Errorf("entity %s not found", ref))
		}
		return fail(ErrCodeStore, err)
	}
	formatter.VerboseLog("%s is a %s", ref, class)

	v, err := s.engine.GetField(ctx, ref, opts.Property, ir.SubKey(opts.WS))
	if err != nil {
		var engErr *engine.Error
		if errors.As(err, &engErr) && engErr.Code == engine.CodeUnregisteredProperty {
			return fail(ErrCodeProperty, err)
		}
		return fail(ErrCodeEngine, err)
	}

	result := GetResult{
		Entity:   ref.String(),
		Class:    class,
		Property: string(class) + "." + opts.Property,
		WS:       opts.WS,
		Value:    v,
	}
	if r, ok := v.(ir.IRRef); ok {
		result.Value = r.Ref()
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, formatValue(v))
	return nil
}

// formatValue renders v for text output. References print as r:<id>.
func formatValue(v ir.IRValue) string {
	switch x := v.(type) {
	case nil, ir.IRNull:
		return "null"
	case ir.IRString:
		return string(x)
	case ir.IRInt:
		return fmt.Sprintf("%d", int64(x))
	case ir.IRBool:
		return fmt.Sprintf("%t", bool(x))
	case ir.IRRef:
		return x.Ref().String()
	case ir.IRRefs:
		parts := make([]string, len(x))
		for i, r := range x {
			parts[i] = r.String()
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
