package types

// Reference points at a node by absolute path.  File is empty for nodes
// in the same store; otherwise it names the external store.
type Reference struct {
	File string `json:"file,omitempty"`
	Path string `json:"path"`
}

func (r Reference) IsExternal() bool {
	return r.File != ""
}

func (r Reference) String() string {
	if r.File == "" {
		return r.Path
	}
	return r.File + "::" + r.Path
}

// NodeInfo describes one node of the hierarchical store.
type NodeInfo struct {
	Name string
	Path string
	Kind NodeKind
}

// DatasetLayout is how a dataset is laid out on disk.  ChunkRows is the
// number of first-dimension rows stored per chunk.
type DatasetLayout struct {
	DType     DType `json:"dtype"`
	Shape     []int `json:"shape"`
	ChunkRows int   `json:"chunk_rows"`
}

// Chunks returns the number of chunks the layout splits the rows into.
func (l DatasetLayout) Chunks() int {
	rows := 1
	if len(l.Shape) > 0 {
		rows = l.Shape[0]
	}
	if rows == 0 || l.ChunkRows <= 0 {
		return 0
	}
	return (rows + l.ChunkRows - 1) / l.ChunkRows
}

// StoreStats counts the payload traffic of one store session.
type StoreStats struct {
	ChunksRead    int64
	BytesRead     int64
	ChunksWritten int64
	BytesWritten  int64
}
