// Package nwb provides typed containers for the bundled neurophysiology
// vocabulary and the field rules that name their schema elements.
package nwb

import (
	"nwbio/internal/core"
)

const (
	CoreNamespace   = "core"
	CommonNamespace = "hdmf-common"
)

type registration struct {
	namespace string
	typeName  string
	ctor      core.Constructor
	rules     []core.FieldRule
}

func registrations() []registration {
	return []registration{
		{CommonNamespace, "VectorData", func(c *core.Container) core.Object { return &VectorData{Container: c} }, nil},
		{CommonNamespace, "VectorIndex", func(c *core.Container) core.Object { return &VectorIndex{VectorData{Container: c}} }, nil},
		{CommonNamespace, "ElementIdentifiers", func(c *core.Container) core.Object { return &ElementIdentifiers{Container: c} }, nil},
		{CommonNamespace, "DynamicTableRegion", func(c *core.Container) core.Object { return &DynamicTableRegion{Container: c} }, nil},
		{CommonNamespace, "DynamicTable", func(c *core.Container) core.Object { return &DynamicTable{Container: c} }, []core.FieldRule{
			{Field: "columns", Path: "<VectorData>"},
		}},
		{CoreNamespace, "Device", func(c *core.Container) core.Object { return &Device{Container: c} }, nil},
		{CoreNamespace, "ElectrodeGroup", func(c *core.Container) core.Object { return &ElectrodeGroup{Container: c} }, nil},
		{CoreNamespace, "TimeSeries", func(c *core.Container) core.Object { return &TimeSeries{Container: c} }, []core.FieldRule{
			{Field: "unit", Path: "data/unit"},
			{Field: "conversion", Path: "data/conversion"},
			{Field: "offset", Path: "data/offset"},
			{Field: "resolution", Path: "data/resolution"},
			{Field: "continuity", Path: "data/continuity"},
			{Field: "rate", Path: "starting_time/rate"},
		}},
		{CoreNamespace, "ElectricalSeries", func(c *core.Container) core.Object { return &ElectricalSeries{TimeSeries: TimeSeries{Container: c}} }, nil},
		{CoreNamespace, "SpikeEventSeries", func(c *core.Container) core.Object {
			return &SpikeEventSeries{ElectricalSeries{TimeSeries{Container: c}}}
		}, nil},
		{CoreNamespace, "LFP", func(c *core.Container) core.Object { return &LFP{electricalSeriesHolder{c}} }, nil},
		{CoreNamespace, "FilteredEphys", func(c *core.Container) core.Object { return &FilteredEphys{electricalSeriesHolder{c}} }, nil},
		{CoreNamespace, "Subject", func(c *core.Container) core.Object { return &Subject{Container: c} }, nil},
		{CoreNamespace, "LabMetaData", func(c *core.Container) core.Object { return &LabMetaData{Container: c} }, nil},
		{CoreNamespace, "TimeIntervals", func(c *core.Container) core.Object { return &TimeIntervals{DynamicTable{Container: c}} }, nil},
		{CoreNamespace, "Units", func(c *core.Container) core.Object { return &Units{DynamicTable{Container: c}} }, nil},
		{CoreNamespace, "ProcessingModule", func(c *core.Container) core.Object { return &ProcessingModule{Container: c} }, []core.FieldRule{
			{Field: "data_interfaces", Path: "<NWBDataInterface>"},
			{Field: "data_interfaces", Path: "<DynamicTable>"},
		}},
		{CoreNamespace, "NWBFile", func(c *core.Container) core.Object { return &NWBFile{Container: c} }, []core.FieldRule{
			{Field: "devices", Path: "general/devices/<Device>"},
			{Field: "electrode_groups", Path: "general/extracellular_ephys/<ElectrodeGroup>"},
			{Field: "electrodes", Path: "general/extracellular_ephys/electrodes"},
			{Field: "experimenter", Path: "general/experimenter"},
			{Field: "experiment_description", Path: "general/experiment_description"},
			{Field: "institution", Path: "general/institution"},
			{Field: "lab", Path: "general/lab"},
			{Field: "session_id", Path: "general/session_id"},
			{Field: "subject", Path: "general/subject"},
			{Field: "lab_meta_data", Path: "general/<LabMetaData>"},
			{Field: "epochs", Path: "intervals/epochs"},
			{Field: "trials", Path: "intervals/trials"},
		}},
	}
}

// Register installs the typed containers and their field rules in tm.
// Types whose namespace is not loaded are skipped, so a map holding only
// hdmf-common still gets the table types.
func Register(tm *core.TypeMap) error {
	for _, r := range registrations() {
		if _, ok := tm.Catalog().Namespace(r.namespace); !ok {
			continue
		}
		if err := tm.RegisterType(r.namespace, r.typeName, r.ctor); err != nil {
			return err
		}
		if len(r.rules) == 0 {
			continue
		}
		if err := tm.RegisterFieldMapper(r.namespace, r.typeName, r.rules...); err != nil {
			return err
		}
	}
	return nil
}

// newTyped creates an empty container of typeName and unwraps it to T.
// It fails when tm has no constructor for T registered.
func newTyped[T core.Object](tm *core.TypeMap, namespace string, typeName string, name string) (T, error) {
	var zero T
	obj, err := tm.NewObject(namespace, typeName, name)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, unregistered(typeName, obj)
	}
	return typed, nil
}
