package ir

const (
	// SchemaFormat versions the compiled descriptor JSON written by compile.
	SchemaFormat = "1"

	// EngineVersion is the lexcache engine version.
	EngineVersion = "0.1.0"
)
