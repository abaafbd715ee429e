package app

import "nwbio/internal/types"

type ValidateRequest struct {
	Paths []string
	// Namespace to validate against.  Empty means the namespace the root
	// of each file is annotated with.
	Namespace  string
	Extensions []string
	// UseCached loads the namespaces cached in each file before
	// validating.
	UseCached bool
}

type FileValidation struct {
	Path      string
	Namespace string
	Errors    []types.ValidationError
}

type ValidateResult struct {
	Files []FileValidation
}

// ErrorCount sums the violations over all files.
func (r ValidateResult) ErrorCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Errors)
	}
	return n
}

type InspectRequest struct {
	Path       string
	Extensions []string
}

type InspectNode struct {
	Path   string
	Kind   types.NodeKind
	Type   string
	Shape  []int
	DType  types.DType
	Target string
}

type InspectResult struct {
	RootType      string
	Namespace     string
	SchemaVersion string
	Nodes         []InspectNode
	Stats         types.StoreStats
}

type ExportRequest struct {
	SourcePath string
	DestPath   string
	// CoreVersion selects the bundled core version written to the
	// destination.  Empty means the newest bundled one.
	CoreVersion string
	Extensions  []string
}

type ExportResult struct {
	DestPath      string
	Namespace     string
	SchemaVersion string
	Nodes         int
}

type NamespacesRequest struct {
	// Path lists the namespaces cached in a file.  Empty lists the
	// loaded ones.
	Path string
	// Bundled lists every bundled version instead of the loaded ones.
	Bundled bool
}

type NamespaceSummary struct {
	Name     string
	Version  string
	Includes []string
	Types    int
	Origin   string
}

type NamespacesResult struct {
	Namespaces []NamespaceSummary
}
