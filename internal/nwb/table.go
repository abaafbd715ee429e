package nwb

import (
	"context"
	"slices"

	"nwbio/internal/core"
	"nwbio/internal/errs"
)

// VectorData is one column of a DynamicTable.
type VectorData struct {
	*core.Container
}

func NewVectorData(tm *core.TypeMap, name string, description string, data any) (*VectorData, error) {
	v, err := newTyped[*VectorData](tm, CommonNamespace, "VectorData", name)
	if err != nil {
		return nil, err
	}
	if err := setFields(v.Container, fieldValue{"data", data}, fieldValue{"description", description}); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VectorData) Data() any           { return v.Field("data") }
func (v *VectorData) Description() string { return stringAttr(v.Container, "description") }

// Len returns the number of rows in the column.
func (v *VectorData) Len() int {
	if dims := dimsOf(v.Field("data")); len(dims) > 0 {
		return dims[0]
	}
	return 0
}

// VectorIndex makes its target column ragged: element i is the end offset
// of row i in the target's data.
type VectorIndex struct {
	VectorData
}

func NewVectorIndex(tm *core.TypeMap, name string, target *VectorData) (*VectorIndex, error) {
	v, err := newTyped[*VectorIndex](tm, CommonNamespace, "VectorIndex", name)
	if err != nil {
		return nil, err
	}
	if err := setFields(v.Container,
		fieldValue{"data", []int64{}},
		fieldValue{"description", "Index for VectorData '" + target.Name() + "'"},
		fieldValue{"target", target},
	); err != nil {
		return nil, err
	}
	return v, nil
}

// Target returns the column this index splits into rows.
func (v *VectorIndex) Target() *VectorData {
	return asVectorData(v.Field("target"))
}

func (v *VectorIndex) Offsets(ctx context.Context) ([]int64, error) {
	return int64sValue(ctx, v.Field("data"))
}

func asVectorData(obj any) *VectorData {
	switch col := obj.(type) {
	case *VectorData:
		return col
	case *VectorIndex:
		return &col.VectorData
	}
	return nil
}

// ElementIdentifiers holds the row ids of a table.
type ElementIdentifiers struct {
	*core.Container
}

func NewElementIdentifiers(tm *core.TypeMap, name string, ids []int64) (*ElementIdentifiers, error) {
	e, err := newTyped[*ElementIdentifiers](tm, CommonNamespace, "ElementIdentifiers", name)
	if err != nil {
		return nil, err
	}
	if err := e.Set("data", ids); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ElementIdentifiers) IDs(ctx context.Context) ([]int64, error) {
	return int64sValue(ctx, e.Field("data"))
}

// DynamicTable is a set of equally long columns with row ids.
type DynamicTable struct {
	*core.Container
}

// NewDynamicTable returns a table of rows rows, numbered from 0, with no
// columns yet.
func NewDynamicTable(tm *core.TypeMap, name string, description string, rows int) (*DynamicTable, error) {
	t, err := newTyped[*DynamicTable](tm, CommonNamespace, "DynamicTable", name)
	if err != nil {
		return nil, err
	}
	if err := t.init(tm, description, rows); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *DynamicTable) init(tm *core.TypeMap, description string, rows int) error {
	ids := make([]int64, rows)
	for i := range ids {
		ids[i] = int64(i)
	}
	id, err := NewElementIdentifiers(tm, "id", ids)
	if err != nil {
		return err
	}
	return setFields(t.Container,
		fieldValue{"description", description},
		fieldValue{"id", id},
		fieldValue{"colnames", []string{}},
	)
}

func (t *DynamicTable) Description() string { return stringAttr(t.Container, "description") }

// Rows returns the number of rows, taken from the id column.
func (t *DynamicTable) Rows() int {
	id, ok := t.Field("id").(*ElementIdentifiers)
	if !ok {
		return 0
	}
	if dims := dimsOf(id.Field("data")); len(dims) > 0 {
		return dims[0]
	}
	return 0
}

// AddColumn appends a column, which must have one value per row.
func (t *DynamicTable) AddColumn(ctx context.Context, col *VectorData) error {
	if col.Len() != t.Rows() {
		return errs.ShapeConstraint("columns", "column %q has %d rows, table %q has %d",
			col.Name(), col.Len(), t.Name(), t.Rows())
	}
	names, err := t.ColumnNames(ctx)
	if err != nil {
		return err
	}
	if err := t.AddChild("columns", col); err != nil {
		return err
	}
	return t.Set("colnames", append(slices.Clone(names), col.Name()))
}

// Column returns the named column.  Index columns are returned as their
// underlying data.
func (t *DynamicTable) Column(name string) (*VectorData, bool) {
	obj, ok := t.Child("columns", name)
	if !ok {
		return nil, false
	}
	col := asVectorData(obj)
	return col, col != nil
}

// Index returns the index that makes column name ragged.
func (t *DynamicTable) Index(name string) (*VectorIndex, bool) {
	obj, ok := t.Child("columns", name+"_index")
	if !ok {
		return nil, false
	}
	index, ok := obj.(*VectorIndex)
	return index, ok
}

// AddRaggedColumn appends an empty column whose rows hold a variable
// number of values, together with its index.  The table must have no
// rows yet.
func (t *DynamicTable) AddRaggedColumn(ctx context.Context, tm *core.TypeMap, name string, description string) error {
	if t.Rows() != 0 {
		return errs.ShapeConstraint("columns", "ragged column %q must be added before the rows of table %q", name, t.Name())
	}
	col, err := NewVectorData(tm, name, description, nil)
	if err != nil {
		return err
	}
	index, err := NewVectorIndex(tm, name+"_index", col)
	if err != nil {
		return err
	}
	if err := t.AddColumn(ctx, col); err != nil {
		return err
	}
	return t.AddChild("columns", index)
}

// AddRow appends one row.  values must name every column and nothing
// else; a ragged column takes a slice.  Rows can only be added to
// columns held in memory, so a table read from a store is fixed.
func (t *DynamicTable) AddRow(ctx context.Context, values map[string]any) error {
	names, err := t.ColumnNames(ctx)
	if err != nil {
		return err
	}
	for key := range values {
		if !slices.Contains(names, key) {
			return errs.TypeMismatch("table %q has no column %q", t.Name(), key).WithField(key)
		}
	}
	type update struct {
		c    *core.Container
		data any
	}
	updates := make([]update, 0, len(names)+1)
	for _, name := range names {
		value, ok := values[name]
		if !ok {
			return errs.MissingRequiredField(name, "row for table %q has no value for column %q", t.Name(), name)
		}
		col, ok := t.Column(name)
		if !ok {
			return errs.TypeMismatch("column %q of table %q does not take rows", name, t.Name()).WithField(name)
		}
		index, ragged := t.Index(name)
		data, err := appendCell(name, col.Data(), value, ragged)
		if err != nil {
			return err
		}
		updates = append(updates, update{col.Container, data})
		if !ragged {
			continue
		}
		offsets, err := appendCell(index.Name(), index.Data(), int64(dimsOf(data)[0]), false)
		if err != nil {
			return err
		}
		updates = append(updates, update{index.Container, offsets})
	}
	id, ok := t.Field("id").(*ElementIdentifiers)
	if !ok {
		return errs.MissingRequiredField("id", "table %q has no row ids", t.Name())
	}
	ids, err := appendCell("id", id.Field("data"), int64(t.Rows()), false)
	if err != nil {
		return err
	}
	updates = append(updates, update{id.Container, ids})
	for _, u := range updates {
		if err := u.c.Set("data", u.data); err != nil {
			return err
		}
	}
	return nil
}

// Columns returns the columns in colnames order.
func (t *DynamicTable) Columns(ctx context.Context) ([]*VectorData, error) {
	names, err := t.ColumnNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*VectorData, 0, len(names))
	for _, name := range names {
		col, ok := t.Column(name)
		if !ok {
			return nil, errs.Format("table %q lists column %q but does not hold it", t.Name(), name)
		}
		out = append(out, col)
	}
	return out, nil
}

func (t *DynamicTable) ColumnNames(ctx context.Context) ([]string, error) {
	return textsValue(ctx, t.Field("colnames"))
}

// DynamicTableRegion selects rows of a table by index.
type DynamicTableRegion struct {
	*core.Container
}

func NewDynamicTableRegion(tm *core.TypeMap, name string, description string, rows []int64, table *DynamicTable) (*DynamicTableRegion, error) {
	for _, row := range rows {
		if row < 0 || int(row) >= table.Rows() {
			return nil, errs.ShapeConstraint("data", "row %d is outside table %q with %d rows", row, table.Name(), table.Rows())
		}
	}
	r, err := newTyped[*DynamicTableRegion](tm, CommonNamespace, "DynamicTableRegion", name)
	if err != nil {
		return nil, err
	}
	if err := setFields(r.Container,
		fieldValue{"data", rows},
		fieldValue{"description", description},
		fieldValue{"table", table},
	); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DynamicTableRegion) Description() string { return stringAttr(r.Container, "description") }

// Table returns the referenced table.
func (r *DynamicTableRegion) Table() *DynamicTable {
	t, _ := r.Field("table").(*DynamicTable)
	return t
}

func (r *DynamicTableRegion) Rows(ctx context.Context) ([]int64, error) {
	return int64sValue(ctx, r.Field("data"))
}
