package nwb

import (
	"context"

	"github.com/rs/zerolog/log"

	"nwbio/internal/core"
	"nwbio/internal/errs"
)

// TimeSeries holds samples along time, either at a fixed rate from a
// starting time or at explicit timestamps.  Timestamps may be shared with
// another series, in which case they are stored once and linked.
type TimeSeries struct {
	*core.Container
}

func NewTimeSeries(tm *core.TypeMap, name string, data any, unit string) (*TimeSeries, error) {
	ts, err := newTyped[*TimeSeries](tm, CoreNamespace, "TimeSeries", name)
	if err != nil {
		return nil, err
	}
	if err := ts.init(data, unit); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *TimeSeries) init(data any, unit string) error {
	return setFields(ts.Container,
		fieldValue{"data", data},
		fieldValue{"unit", unit},
	)
}

// SetRate places samples every 1/rate seconds from start.
func (ts *TimeSeries) SetRate(start float64, rate float64) error {
	if _, ok := ts.Get("timestamps"); ok {
		return errs.TypeMismatch("%s %q already has timestamps", ts.TypeName(), ts.Name()).WithField("rate")
	}
	if rate <= 0 {
		return errs.TypeMismatch("sampling rate must be positive, got %g", rate).WithField("rate")
	}
	if err := ts.Set("starting_time", start); err != nil {
		return err
	}
	return ts.Set("rate", rate)
}

// SetTimestamps stores explicit sample times.  Passing another series
// shares its timestamps instead of copying them.
func (ts *TimeSeries) SetTimestamps(timestamps any) error {
	if _, ok := ts.Get("rate"); ok {
		return errs.TypeMismatch("%s %q already has a sampling rate", ts.TypeName(), ts.Name()).WithField("timestamps")
	}
	if other, ok := timestamps.(interface{ TimestampsSource() *TimeSeries }); ok {
		src := other.TimestampsSource()
		if src == nil {
			return errs.TypeMismatch("%s %q: the series to share timestamps with has none",
				ts.TypeName(), ts.Name()).WithField("timestamps")
		}
		timestamps = src
	}
	return ts.Set("timestamps", timestamps)
}

func (ts *TimeSeries) Data() any           { return ts.Field("data") }
func (ts *TimeSeries) Unit() string        { return stringAttr(ts.Container, "unit") }
func (ts *TimeSeries) Description() string { return stringAttr(ts.Container, "description") }
func (ts *TimeSeries) Comments() string    { return stringAttr(ts.Container, "comments") }
func (ts *TimeSeries) Continuity() string  { return stringAttr(ts.Container, "continuity") }
func (ts *TimeSeries) Timestamps() any     { return ts.Field("timestamps") }
func (ts *TimeSeries) StartingTime() any   { return ts.Field("starting_time") }
func (ts *TimeSeries) DataDims() []int     { return dimsOf(ts.Field("data")) }

// Rate returns the sampling rate, if the series has one.
func (ts *TimeSeries) Rate() (float64, bool) {
	return floatAttr(ts.Field("rate"))
}

// Conversion returns the factor that turns stored values into unit,
// defaulting to 1.
func (ts *TimeSeries) Conversion() float64 {
	if v, ok := floatAttr(ts.Field("conversion")); ok {
		return v
	}
	return 1
}

// TimestampsSource returns the series whose timestamps this one uses:
// itself when it stores its own, another series when they are shared,
// nil when it has none.
func (ts *TimeSeries) TimestampsSource() *TimeSeries {
	switch v := ts.Field("timestamps").(type) {
	case nil:
		return nil
	case *TimeSeries:
		return v
	case *ElectricalSeries:
		return &v.TimeSeries
	case *SpikeEventSeries:
		return &v.TimeSeries
	}
	return ts
}

// ElectricalSeries is voltage data recorded from the rows of an
// electrodes table.
type ElectricalSeries struct {
	TimeSeries
}

func NewElectricalSeries(ctx context.Context, tm *core.TypeMap, name string, data any, electrodes *DynamicTableRegion) (*ElectricalSeries, error) {
	es, err := newTyped[*ElectricalSeries](tm, CoreNamespace, "ElectricalSeries", name)
	if err != nil {
		return nil, err
	}
	if err := es.init(data, ""); err != nil {
		return nil, err
	}
	if electrodes != nil {
		if err := es.Set("electrodes", electrodes); err != nil {
			return nil, err
		}
	}
	es.checkOrientation(ctx)
	return es, nil
}

// Electrodes returns the table region naming the recorded channels.
func (es *ElectricalSeries) Electrodes() *DynamicTableRegion {
	r, _ := es.Field("electrodes").(*DynamicTableRegion)
	return r
}

func (es *ElectricalSeries) Filtering() string { return stringAttr(es.Container, "filtering") }

// Init runs once the series has been read back.
func (es *ElectricalSeries) Init(ctx context.Context) error {
	es.checkOrientation(ctx)
	return nil
}

// checkOrientation warns when the data looks transposed: the channel
// count sits on the time axis instead of the second one.
func (es *ElectricalSeries) checkOrientation(ctx context.Context) {
	region := es.Electrodes()
	if region == nil {
		return
	}
	channels := dimsOf(region.Field("data"))
	dims := es.DataDims()
	if len(channels) != 1 || len(dims) == 0 {
		return
	}
	n := channels[0]
	switch {
	case len(dims) == 1 && n > 1:
		log.Ctx(ctx).Warn().Str("series", es.Name()).Int("channels", n).
			Msg("data is one-dimensional but the series records several electrodes")
	case len(dims) >= 2 && dims[1] != n && dims[0] == n:
		log.Ctx(ctx).Warn().Str("series", es.Name()).Ints("shape", dims).Int("channels", n).
			Msg("data looks transposed, time should be the first dimension")
	case len(dims) >= 2 && dims[1] != n:
		log.Ctx(ctx).Warn().Str("series", es.Name()).Ints("shape", dims).Int("channels", n).
			Msg("second dimension of data does not match the number of electrodes")
	}
}
