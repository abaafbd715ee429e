package nwb

import (
	"context"
	"maps"

	"nwbio/internal/core"
	"nwbio/internal/errs"
)

// TimeIntervals is a table of time spans, one per row, such as trials or
// epochs.
type TimeIntervals struct {
	DynamicTable
}

func NewTimeIntervals(ctx context.Context, tm *core.TypeMap, name string, description string) (*TimeIntervals, error) {
	ti, err := newTyped[*TimeIntervals](tm, CoreNamespace, "TimeIntervals", name)
	if err != nil {
		return nil, err
	}
	if err := ti.init(tm, description, 0); err != nil {
		return nil, err
	}
	start, err := NewVectorData(tm, "start_time", "Start time of epoch, in seconds.", nil)
	if err != nil {
		return nil, err
	}
	stop, err := NewVectorData(tm, "stop_time", "Stop time of epoch, in seconds.", nil)
	if err != nil {
		return nil, err
	}
	for _, col := range []*VectorData{start, stop} {
		if err := ti.AddColumn(ctx, col); err != nil {
			return nil, err
		}
	}
	return ti, nil
}

// AddInterval appends a row spanning start to stop.  extra holds the
// values of any further columns.
func (ti *TimeIntervals) AddInterval(ctx context.Context, start float64, stop float64, extra map[string]any) error {
	if stop < start {
		return errs.ShapeConstraint("stop_time", "interval stops at %g before it starts at %g", stop, start)
	}
	values, err := rowValues(extra, map[string]any{"start_time": start, "stop_time": stop})
	if err != nil {
		return err
	}
	return ti.AddRow(ctx, values)
}

// Interval returns the start and stop time of row.
func (ti *TimeIntervals) Interval(ctx context.Context, row int) (float64, float64, error) {
	start, err := ti.floatCell(ctx, "start_time", row)
	if err != nil {
		return 0, 0, err
	}
	stop, err := ti.floatCell(ctx, "stop_time", row)
	if err != nil {
		return 0, 0, err
	}
	return start, stop, nil
}

func (t *DynamicTable) floatCell(ctx context.Context, column string, row int) (float64, error) {
	col, ok := t.Column(column)
	if !ok {
		return 0, errs.MissingRequiredField(column, "table %q has no column %q", t.Name(), column)
	}
	values, err := float64sValue(ctx, col.Data())
	if err != nil {
		return 0, err
	}
	if row < 0 || row >= len(values) {
		return 0, errs.ShapeConstraint(column, "row %d is outside table %q with %d rows", row, t.Name(), len(values))
	}
	return values[row], nil
}

// Units is the table of sorted units, each with its spike times.
type Units struct {
	DynamicTable
}

func NewUnits(ctx context.Context, tm *core.TypeMap, description string) (*Units, error) {
	u, err := newTyped[*Units](tm, CoreNamespace, "Units", "units")
	if err != nil {
		return nil, err
	}
	if err := u.init(tm, description, 0); err != nil {
		return nil, err
	}
	if err := u.AddRaggedColumn(ctx, tm, "spike_times", "The spike times for each unit, in seconds."); err != nil {
		return nil, err
	}
	return u, nil
}

// AddUnit appends a unit with its spike times.  extra holds the values of
// any further columns.
func (u *Units) AddUnit(ctx context.Context, spikeTimes []float64, extra map[string]any) error {
	if spikeTimes == nil {
		spikeTimes = []float64{}
	}
	values, err := rowValues(extra, map[string]any{"spike_times": spikeTimes})
	if err != nil {
		return err
	}
	return u.AddRow(ctx, values)
}

// SpikeTimes returns the spike times of the unit in row.
func (u *Units) SpikeTimes(ctx context.Context, row int) ([]float64, error) {
	col, ok := u.Column("spike_times")
	if !ok {
		return nil, errs.MissingRequiredField("spike_times", "units table has no spike_times column")
	}
	index, ok := u.Index("spike_times")
	if !ok {
		return nil, errs.MissingRequiredField("spike_times_index", "units table has no spike_times_index column")
	}
	offsets, err := index.Offsets(ctx)
	if err != nil {
		return nil, err
	}
	if row < 0 || row >= len(offsets) {
		return nil, errs.ShapeConstraint("spike_times", "row %d is outside the units table with %d rows", row, len(offsets))
	}
	times, err := float64sValue(ctx, col.Data())
	if err != nil {
		return nil, err
	}
	var begin int64
	if row > 0 {
		begin = offsets[row-1]
	}
	end := offsets[row]
	if begin > end || end > int64(len(times)) {
		return nil, errs.Format("spike_times_index offsets %d..%d do not fit %d spike times", begin, end, len(times))
	}
	return times[begin:end], nil
}

// rowValues merges the fixed values of a row with the caller's extra
// columns, which may not redefine them.
func rowValues(extra map[string]any, fixed map[string]any) (map[string]any, error) {
	values := maps.Clone(extra)
	if values == nil {
		values = make(map[string]any, len(fixed))
	}
	for name, value := range fixed {
		if _, ok := values[name]; ok {
			return nil, errs.NameCollision("column %q is set by the row itself and cannot be passed again", name).WithField(name)
		}
		values[name] = value
	}
	return values, nil
}

// AddTrial appends a trial, creating the trials table on first use.
func (f *NWBFile) AddTrial(ctx context.Context, tm *core.TypeMap, start float64, stop float64, extra map[string]any) error {
	trials, err := f.intervals(ctx, tm, "trials", "experimental trials")
	if err != nil {
		return err
	}
	return trials.AddInterval(ctx, start, stop, extra)
}

// AddEpoch appends an epoch, creating the epochs table on first use.
func (f *NWBFile) AddEpoch(ctx context.Context, tm *core.TypeMap, start float64, stop float64, extra map[string]any) error {
	epochs, err := f.intervals(ctx, tm, "epochs", "experimental epochs")
	if err != nil {
		return err
	}
	return epochs.AddInterval(ctx, start, stop, extra)
}

// AddTrialColumn adds a column to the trials table.  data holds a value
// per existing trial, or is nil before the first trial.
func (f *NWBFile) AddTrialColumn(ctx context.Context, tm *core.TypeMap, name string, description string, data any) error {
	trials, err := f.intervals(ctx, tm, "trials", "experimental trials")
	if err != nil {
		return err
	}
	col, err := NewVectorData(tm, name, description, data)
	if err != nil {
		return err
	}
	return trials.AddColumn(ctx, col)
}

func (f *NWBFile) Trials() *TimeIntervals {
	t, _ := f.Field("trials").(*TimeIntervals)
	return t
}

func (f *NWBFile) Epochs() *TimeIntervals {
	t, _ := f.Field("epochs").(*TimeIntervals)
	return t
}

func (f *NWBFile) intervals(ctx context.Context, tm *core.TypeMap, field string, description string) (*TimeIntervals, error) {
	if t, ok := f.Field(field).(*TimeIntervals); ok {
		return t, nil
	}
	t, err := NewTimeIntervals(ctx, tm, field, description)
	if err != nil {
		return nil, err
	}
	if err := f.Set(field, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AddUnit appends a sorted unit, creating the units table on first use.
func (f *NWBFile) AddUnit(ctx context.Context, tm *core.TypeMap, spikeTimes []float64, extra map[string]any) error {
	units, err := f.units(ctx, tm)
	if err != nil {
		return err
	}
	return units.AddUnit(ctx, spikeTimes, extra)
}

// AddUnitColumn adds a column to the units table.  data holds a value per
// existing unit, or is nil before the first unit.
func (f *NWBFile) AddUnitColumn(ctx context.Context, tm *core.TypeMap, name string, description string, data any) error {
	units, err := f.units(ctx, tm)
	if err != nil {
		return err
	}
	col, err := NewVectorData(tm, name, description, data)
	if err != nil {
		return err
	}
	return units.AddColumn(ctx, col)
}

func (f *NWBFile) Units() *Units {
	u, _ := f.Field("units").(*Units)
	return u
}

func (f *NWBFile) units(ctx context.Context, tm *core.TypeMap) (*Units, error) {
	if u := f.Units(); u != nil {
		return u, nil
	}
	u, err := NewUnits(ctx, tm, "data on spike-sorted units")
	if err != nil {
		return nil, err
	}
	if err := f.Set("units", u); err != nil {
		return nil, err
	}
	return u, nil
}
