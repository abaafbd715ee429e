package ports

import "nwbio/internal/types"

// NamespaceSourcePort supplies namespace definitions to the schema
// catalog.
//
// Sources are returned in load order: a namespace always follows the
// namespaces it includes, so callers can register them one by one.
type NamespaceSourcePort interface {
	// Bundled returns the namespaces shipped with the engine, every
	// bundled version included.
	Bundled() ([]types.NamespaceSource, error)

	// Load reads a namespace file from disk.
	Load(path string) ([]types.NamespaceSource, error)

	// Parse decodes raw namespace YAML, as cached inside written files.
	Parse(raw []byte, origin string) (types.NamespaceSource, error)
}
