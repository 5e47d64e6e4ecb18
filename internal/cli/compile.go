package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/model"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompileResult is the JSON shape of a successful compile.
type CompileResult struct {
	Format string     `json:"format"`
	Hash   string     `json:"hash"`
	Schema *ir.Schema `json:"schema"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ClassCount    int `json:"classes"`
	RawCount      int `json:"raw"`
	PropertyCount int `json:"properties"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [schema]",
		Short: "Compile a CUE schema to descriptors",
		Long: `Compile a CUE schema (a .cue file or a directory holding one
package) into class, raw property and computed property descriptors.

Every property must name a handler the model provides. Without an
argument the configured schema, or the embedded model, is compiled.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.Config.Schema
			if len(args) == 1 {
				path = args[0]
			}
			return runCompile(opts, path, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := LoadSchema(path)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	formatter.VerboseLog("Compiled %s (%d file(s))", loaded.Source, len(loaded.Files))

	if _, err := model.Build(loaded.Schema); err != nil {
		return outputCompileError(formatter, &LoadError{Code: ErrCodeDeclaration, Message: err.Error()})
	}

	hash, err := ir.SchemaHash(loaded.Schema)
	if err != nil {
		return outputCompileError(formatter, &LoadError{Code: ErrCodeGeneric, Message: err.Error()})
	}

	stats := CompilationStats{
		ClassCount:    len(loaded.Schema.Classes),
		RawCount:      len(loaded.Schema.Raw),
		PropertyCount: len(loaded.Schema.Properties),
	}

	if opts.Output != "" {
		if err := writeSchemaToFile(CompileResult{Format: ir.SchemaFormat, Hash: hash, Schema: loaded.Schema}, opts.Output); err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(formatter, loaded.Schema, hash, stats, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, s *ir.Schema, hash string, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(CompileResult{Format: ir.SchemaFormat, Hash: hash, Schema: s})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d class(es), %d raw field(s), %d computed propert(ies)\n\n",
		stats.ClassCount, stats.RawCount, stats.PropertyCount)
	fmt.Fprintf(w, "Schema hash: %s\n\n", hash)

	fmt.Fprintln(w, "Properties:")
	for _, p := range s.Properties {
		d := p.Descriptor
		fmt.Fprintf(w, "  %s [%d] %s ← %s\n", d.Key(), d.Tag, d.Kind, p.Handler)
	}
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote descriptors to %s\n", outputFile)
	}
	return nil
}

// outputCompileError reports err and returns a command-level exit error.
func outputCompileError(formatter *OutputFormatter, err error) error {
	loadErr := convertCompileError(err)
	if formatter.Format == "json" {
		var details any
		if loadErr.Pos.IsValid() {
			details = map[string]any{
				"file":   loadErr.Pos.Filename(),
				"line":   loadErr.Pos.Line(),
				"column": loadErr.Pos.Column(),
			}
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, details)
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
		fmt.Fprintln(formatter.Writer)
		if loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", loadErr.Code, loadErr.Message)
	}
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, "compilation failed", errors.New(loadErr.Message))
}

// writeSchemaToFile writes the compiled schema as indented JSON.
func writeSchemaToFile(r CompileResult, filename string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
