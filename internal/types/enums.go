package types

// SessionMode is the mode an I/O session was opened with.
type SessionMode string

const (
	SessionModeRead         SessionMode = "read"
	SessionModeWrite        SessionMode = "write"
	SessionModeAppend       SessionMode = "append"
	SessionModeExportSource SessionMode = "export-source"
	SessionModeExportDest   SessionMode = "export-dest"
)

// Writable reports whether the mode may create new nodes.
func (m SessionMode) Writable() bool {
	switch m {
	case SessionModeWrite, SessionModeAppend, SessionModeExportDest:
		return true
	}
	return false
}

// Readable reports whether the mode may read existing nodes.
func (m SessionMode) Readable() bool {
	switch m {
	case SessionModeRead, SessionModeAppend, SessionModeExportSource:
		return true
	}
	return false
}

// Truncates reports whether opening discards existing content.
func (m SessionMode) Truncates() bool {
	return m == SessionModeWrite || m == SessionModeExportDest
}

func (m SessionMode) Valid() bool {
	return m.Writable() || m.Readable()
}

// NodeKind identifies a node in the hierarchical store.
type NodeKind string

const (
	NodeKindGroup   NodeKind = "group"
	NodeKindDataset NodeKind = "dataset"
	NodeKindLink    NodeKind = "link"
)

// Annotation attributes written on every typed node.
const (
	AttrNamespace     = "namespace"
	AttrDataType      = "neurodata_type"
	AttrObjectID      = "object_id"
	AttrSchemaVersion = "schema_version"
)

// SpecificationsGroup is the root child that holds cached namespaces.
const SpecificationsGroup = "specifications"
