package store

import (
	"fmt"

	"github.com/roach88/lexcache/internal/ir"
)

// marshalScalar converts an atomic IRValue to canonical JSON TEXT for storage.
func marshalScalar(v ir.IRValue) (string, error) {
	switch v.(type) {
	case ir.IRInt, ir.IRBool, ir.IRNull:
	default:
		return "", fmt.Errorf("marshal scalar: unsupported value %T", v)
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal scalar: %w", err)
	}
	return string(data), nil
}

// unmarshalScalar parses stored scalar TEXT. Empty text reads as IRNull.
func unmarshalScalar(data string) (ir.IRValue, error) {
	if data == "" || data == "null" {
		return ir.IRNull{}, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal scalar: %w", err)
	}
	switch v.(type) {
	case ir.IRInt, ir.IRBool:
		return v, nil
	default:
		return nil, fmt.Errorf("unmarshal scalar: unexpected stored value %T", v)
	}
}
