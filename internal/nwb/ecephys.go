package nwb

import (
	"context"

	"github.com/rs/zerolog/log"

	"nwbio/internal/core"
	"nwbio/internal/errs"
)

// Electrode is one row of the electrodes table.
type Electrode struct {
	Location string
	Group    *ElectrodeGroup
	// Position holds x, y and z, or nothing.
	Position []float64
	// Extra holds the values of columns added with AddElectrodeColumn.
	Extra map[string]any
}

// AddElectrode appends a row to the electrodes table, creating the table
// on first use.  Its columns follow the first electrode: position columns
// exist only if that electrode had a position.  The group must already be
// in the file and is recorded by name.
func (f *NWBFile) AddElectrode(ctx context.Context, tm *core.TypeMap, e Electrode) error {
	if e.Group == nil {
		return errs.MissingRequiredField("group", "an electrode needs an electrode group")
	}
	if g, ok := f.ElectrodeGroup(e.Group.Name()); !ok || g != e.Group {
		return errs.TypeMismatch("electrode group %q is not part of the file", e.Group.Name()).WithField("group")
	}
	if e.Position != nil && len(e.Position) != 3 {
		return errs.ShapeConstraint("position", "an electrode position is x, y and z, got %d values", len(e.Position))
	}
	table := f.Electrodes()
	if table == nil {
		var err error
		if table, err = f.newElectrodes(ctx, tm, e.Position != nil); err != nil {
			return err
		}
	}
	fixed := map[string]any{"location": e.Location, "group_name": e.Group.Name()}
	if e.Position != nil {
		fixed["x"], fixed["y"], fixed["z"] = e.Position[0], e.Position[1], e.Position[2]
	}
	values, err := rowValues(e.Extra, fixed)
	if err != nil {
		return err
	}
	return table.AddRow(ctx, values)
}

func (f *NWBFile) newElectrodes(ctx context.Context, tm *core.TypeMap, position bool) (*DynamicTable, error) {
	table, err := NewDynamicTable(tm, "electrodes", "metadata about extracellular electrodes", 0)
	if err != nil {
		return nil, err
	}
	columns := [][2]string{
		{"location", "the location of channel within the subject e.g. brain region"},
		{"group_name", "the name of the ElectrodeGroup this electrode is a part of"},
	}
	if position {
		columns = append(columns,
			[2]string{"x", "the x coordinate of the channel location"},
			[2]string{"y", "the y coordinate of the channel location"},
			[2]string{"z", "the z coordinate of the channel location"},
		)
	}
	for _, c := range columns {
		col, err := NewVectorData(tm, c[0], c[1], nil)
		if err != nil {
			return nil, err
		}
		if err := table.AddColumn(ctx, col); err != nil {
			return nil, err
		}
	}
	if err := f.SetElectrodes(table); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().Bool("position", position).Msg("created electrodes table")
	return table, nil
}

// AddElectrodeColumn adds a column to the electrodes table.  data holds a
// value per existing electrode; on an empty table it may be nil, and the
// first electrode then sets the column's type.
func (f *NWBFile) AddElectrodeColumn(ctx context.Context, tm *core.TypeMap, name string, description string, data any) error {
	table := f.Electrodes()
	if table == nil {
		return errs.MissingRequiredField("electrodes", "add an electrode before adding electrode columns")
	}
	col, err := NewVectorData(tm, name, description, data)
	if err != nil {
		return err
	}
	return table.AddColumn(ctx, col)
}

// CreateElectrodeTableRegion selects rows of the electrodes table, for
// use as the electrodes of an ElectricalSeries.
func (f *NWBFile) CreateElectrodeTableRegion(tm *core.TypeMap, rows []int64, description string) (*DynamicTableRegion, error) {
	table := f.Electrodes()
	if table == nil {
		return nil, errs.MissingRequiredField("electrodes", "the file has no electrodes table")
	}
	return NewDynamicTableRegion(tm, "electrodes", description, rows, table)
}

// SpikeEventSeries holds snapshots of spike waveforms, one per event,
// shaped events x samples or events x channels x samples.
type SpikeEventSeries struct {
	ElectricalSeries
}

func NewSpikeEventSeries(ctx context.Context, tm *core.TypeMap, name string, data any, timestamps []float64, electrodes *DynamicTableRegion) (*SpikeEventSeries, error) {
	if dims := dimsOf(data); len(dims) > 0 && dims[0] != len(timestamps) {
		return nil, errs.ShapeConstraint("timestamps", "%d spike events but %d timestamps", dims[0], len(timestamps))
	}
	s, err := newTyped[*SpikeEventSeries](tm, CoreNamespace, "SpikeEventSeries", name)
	if err != nil {
		return nil, err
	}
	if err := s.init(data, ""); err != nil {
		return nil, err
	}
	if electrodes != nil {
		if err := s.Set("electrodes", electrodes); err != nil {
			return nil, err
		}
	}
	if err := s.SetTimestamps(timestamps); err != nil {
		return nil, err
	}
	s.checkChannels(ctx)
	return s, nil
}

// Init runs once the series has been read back.
func (s *SpikeEventSeries) Init(ctx context.Context) error {
	s.checkChannels(ctx)
	return nil
}

// checkChannels warns when three-dimensional waveforms do not have one
// channel per electrode.  The time axis is per event, so there is no
// orientation to check.
func (s *SpikeEventSeries) checkChannels(ctx context.Context) {
	region := s.Electrodes()
	if region == nil {
		return
	}
	channels := dimsOf(region.Field("data"))
	dims := s.DataDims()
	if len(channels) != 1 || len(dims) != 3 || dims[1] == channels[0] {
		return
	}
	log.Ctx(ctx).Warn().Str("series", s.Name()).Ints("shape", dims).Int("channels", channels[0]).
		Msg("second dimension of spike waveforms does not match the number of electrodes")
}

// electricalSeriesHolder is a data interface holding one or more
// ElectricalSeries.
type electricalSeriesHolder struct {
	*core.Container
}

func (h *electricalSeriesHolder) AddElectricalSeries(es *ElectricalSeries) error {
	return h.AddChild("electrical_series", es)
}

// ElectricalSeries returns the named series.
func (h *electricalSeriesHolder) ElectricalSeries(name string) (*ElectricalSeries, bool) {
	obj, ok := h.Child("electrical_series", name)
	if !ok {
		return nil, false
	}
	switch es := obj.(type) {
	case *ElectricalSeries:
		return es, true
	case *SpikeEventSeries:
		return &es.ElectricalSeries, true
	}
	return nil, false
}

// LFP holds local field potential recordings.
type LFP struct {
	electricalSeriesHolder
}

func NewLFP(tm *core.TypeMap, name string) (*LFP, error) {
	if name == "" {
		name = "LFP"
	}
	return newTyped[*LFP](tm, CoreNamespace, "LFP", name)
}

// FilteredEphys holds recordings after filtering, such as spike band
// data.
type FilteredEphys struct {
	electricalSeriesHolder
}

func NewFilteredEphys(tm *core.TypeMap, name string) (*FilteredEphys, error) {
	if name == "" {
		name = "FilteredEphys"
	}
	return newTyped[*FilteredEphys](tm, CoreNamespace, "FilteredEphys", name)
}
