package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/lexcache/internal/compiler"
	"github.com/roach88/lexcache/internal/ir"
	"github.com/roach88/lexcache/internal/model"
)

// LoadResult holds a compiled schema and where it came from.
type LoadResult struct {
	Schema *ir.Schema
	Source string   // path, or "embedded"
	Files  []string // CUE files read; empty for the embedded schema
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema compiles the schema at path, which may be a single .cue file
// or a directory holding one CUE package. An empty path selects the
// embedded model schema.
func LoadSchema(path string) (*LoadResult, error) {
	if path == "" {
		s, err := model.Schema()
		if err != nil {
			return nil, convertCompileError(err)
		}
		return &LoadResult{Schema: s, Source: "embedded"}, nil
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema: %v", err)}
	}

	var (
		value cue.Value
		files []string
	)
	ctx := cuecontext.New()
	if info.IsDir() {
		files, err = FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
		}
		value = ctx.BuildInstance(inst)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
		}
		files = []string{path}
		value = ctx.CompileBytes(data, cue.Filename(path))
	}
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	s, err := compiler.CompileSchema(value)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{Schema: s, Source: path, Files: files}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	var validationErr compiler.ValidationError
	if errors.As(err, &validationErr) {
		return &LoadError{
			Code:    validationErr.Code,
			Message: fmt.Sprintf("%s: %s", validationErr.Field, validationErr.Message),
		}
	}
	var cycleErr *compiler.CycleError
	if errors.As(err, &cycleErr) {
		return &LoadError{Code: ErrCodeInheritanceCycle, Message: cycleErr.Error()}
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Database open or read failed

	// Declaration errors; validation errors keep the compiler's E1xx codes.
	ErrCodeDeclaration      = "E010" // Malformed class, raw or property declaration
	ErrCodeInvalidTag       = "E011" // Missing or out-of-range tag
	ErrCodeInvalidKind      = "E012" // Unknown kind
	ErrCodeDependencyPath   = "E013" // Unresolvable depends_on path
	ErrCodeInheritanceCycle = "E014" // Class extends itself

	// Engine errors
	ErrCodeEntity   = "E020" // Bad or missing entity
	ErrCodeProperty = "E021" // Unknown property
	ErrCodeEngine   = "E022" // Engine error during a read
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case strings.HasSuffix(field, ".depends_on"):
		return ErrCodeDependencyPath
	case strings.HasSuffix(field, ".tag"):
		return ErrCodeInvalidTag
	case strings.HasSuffix(field, ".kind"):
		return ErrCodeInvalidKind
	case field == "class" || strings.HasPrefix(field, "class.") ||
		strings.HasPrefix(field, "raw.") || strings.HasPrefix(field, "property."):
		return ErrCodeDeclaration
	default:
		return ErrCodeGeneric
	}
}
