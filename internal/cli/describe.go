package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/model"
	"github.com/roach88/lexcache/internal/registry"
)

// DescribeOptions holds flags for the describe command.
type DescribeOptions struct {
	*RootOptions
	Class string
}

// ClassDescription lists what one class declares.
type ClassDescription struct {
	Name       ir.ClassName          `json:"name"`
	Base       ir.ClassName          `json:"base,omitempty"`
	Raw        []ir.RawProperty      `json:"raw"`
	Properties []PropertyDescription `json:"properties"`
}

// PropertyDescription is a computed property with its dependencies named.
type PropertyDescription struct {
	ir.PropertyDescriptor
	Handler   string   `json:"handler"`
	DependsOn []string `json:"depends_on,omitempty"`
	Bulk      bool     `json:"bulk"`
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DescribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "List classes, raw fields and computed properties",
		Long: `Describe the configured schema: every class with its own raw
fields and computed properties, their kinds, flags, handlers and
dependency paths.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", "", "describe only this class")

	return cmd
}

func runDescribe(opts *DescribeOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := LoadSchema(opts.Config.Schema)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	reg, err := model.Build(loaded.Schema)
	if err != nil {
		return outputCompileError(formatter, &LoadError{Code: ErrCodeDeclaration, Message: err.Error()})
	}

	classes, err := describeClasses(loaded.Schema, reg, opts.Class)
	if err != nil {
		_ = formatter.Error(ErrCodeProperty, err.Error(), nil)
		return WrapExitError(ExitCommandError, "describe failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(classes)
	}

	w := formatter.Writer
	for _, c := range classes {
		if c.Base != "" {
			fmt.Fprintf(w, "%s : %s\n", c.Name, c.Base)
		} else {
			fmt.Fprintf(w, "%s\n", c.Name)
		}
		for _, r := range c.Raw {
			flags := ""
			if r.Owning {
				flags = " owning"
			}
			if r.DestinationClass != "" {
				flags += " → " + string(r.DestinationClass)
			}
			fmt.Fprintf(w, "  raw  %-16s [%d] %s%s\n", r.Field, r.Tag, r.Kind, flags)
		}
		for _, p := range c.Properties {
			fmt.Fprintf(w, "  prop %-16s [%d] %s%s ← %s\n", p.Field, p.Tag, p.Kind, propertyFlags(p), p.Handler)
			if len(p.DependsOn) > 0 {
				fmt.Fprintf(w, "       depends on %s\n", strings.Join(p.DependsOn, ", "))
			}
		}
	}
	return nil
}

// describeClasses lists the schema's classes in declaration order, or
// only the named one.
func describeClasses(s *ir.Schema, reg *registry.Registry, only string) ([]ClassDescription, error) {
	if only != "" && !reg.HasClass(ir.ClassName(only)) {
		return nil, fmt.Errorf("unknown class %q", only)
	}

	handlers := make(map[string]string, len(s.Properties))
	for _, p := range s.Properties {
		handlers[p.Descriptor.Key()] = p.Handler
	}

	var out []ClassDescription
	for _, class := range reg.Classes() {
		if only != "" && string(class) != only {
			continue
		}
		c := ClassDescription{Name: class, Base: reg.Base(class), Raw: []ir.RawProperty{}, Properties: []PropertyDescription{}}
		for _, r := range s.Raw {
			if r.Class == class {
				c.Raw = append(c.Raw, r)
			}
		}
		for _, b := range reg.Bindings() {
			d := b.Descriptor
			if d.Class != class {
				continue
			}
			p := PropertyDescription{PropertyDescriptor: d, Handler: handlers[d.Key()]}
			_, p.Bulk = b.Handler.(registry.BulkLoader)
			for _, path := range d.DependencyPaths {
				names := make([]string, len(path))
				for i, t := range path {
					names[i] = reg.TagName(t)
				}
				p.DependsOn = append(p.DependsOn, strings.Join(names, "/"))
			}
			c.Properties = append(c.Properties, p)
		}
		out = append(out, c)
	}
	return out, nil
}

func propertyFlags(p PropertyDescription) string {
	var flags []string
	if p.Writable {
		flags = append(flags, "writable")
	}
	if p.WriteThrough {
		flags = append(flags, "write-through")
	}
	if p.ComputeEveryTime {
		flags = append(flags, "every-time")
	}
	if p.Bulk {
		flags = append(flags, "bulk")
	}
	if p.DestinationClass != "" {
		flags = append(flags, "→ "+string(p.DestinationClass))
	}
	if len(flags) == 0 {
		return ""
	}
	return " (" + strings.Join(flags, ", ") + ")"
}
