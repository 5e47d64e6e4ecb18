package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchema() *Schema {
	return &Schema{
		Classes: []ClassSpec{{Name: "Entry"}, {Name: "Sense", Base: "Entry"}},
		Raw: []RawProperty{
			{Class: "Entry", Field: "Senses", Tag: 1, Kind: KindRefSequence, Owning: true, DestinationClass: "Sense"},
			{Class: "Sense", Field: "Gloss", Tag: 2, Kind: KindMultiText},
		},
		Properties: []PropertySpec{{
			Descriptor: PropertyDescriptor{
				Class:           "Entry",
				Field:           "SenseCount",
				Tag:             3,
				Kind:            KindScalar,
				DependencyPaths: [][]Tag{{1}},
			},
			Handler: "senseCount",
		}},
	}
}

func TestSchemaHashDeterminism(t *testing.T) {
	h1, err := SchemaHash(sampleSchema())
	require.NoError(t, err)
	h2, err := SchemaHash(sampleSchema())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
	_, err = hex.DecodeString(h1)
	assert.NoError(t, err)
}

func TestSchemaHashChangesWithContent(t *testing.T) {
	base, err := SchemaHash(sampleSchema())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Schema)
	}{
		{"handler", func(s *Schema) { s.Properties[0].Handler = "other" }},
		{"tag", func(s *Schema) { s.Raw[1].Tag = 9 }},
		{"kind", func(s *Schema) { s.Raw[1].Kind = KindText }},
		{"flag", func(s *Schema) { s.Properties[0].Descriptor.ComputeEveryTime = true }},
		{"dependency", func(s *Schema) { s.Properties[0].Descriptor.DependencyPaths = [][]Tag{{1, 2}} }},
		{"base", func(s *Schema) { s.Classes[1].Base = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSchema()
			tt.mutate(s)
			h, err := SchemaHash(s)
			require.NoError(t, err)
			assert.NotEqual(t, base, h)
		})
	}
}

func TestSchemaHashEmptySchema(t *testing.T) {
	h, err := SchemaHash(&Schema{})
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// "ab"+0x00+"c" must differ from "a"+0x00+"bc".
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))

	sum := sha256.Sum256([]byte("d\x00x"))
	assert.Equal(t, hex.EncodeToString(sum[:]), hashWithDomain("d", []byte("x")))
}
