package nwb

import (
	"context"
	"time"

	"nwbio/internal/core"
	"nwbio/internal/errs"
)

// ProcessingModule groups processed data interfaces and tables.
type ProcessingModule struct {
	*core.Container
}

func NewProcessingModule(tm *core.TypeMap, name string, description string) (*ProcessingModule, error) {
	m, err := newTyped[*ProcessingModule](tm, CoreNamespace, "ProcessingModule", name)
	if err != nil {
		return nil, err
	}
	if err := m.Set("description", description); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ProcessingModule) Description() string { return stringAttr(m.Container, "description") }

// Add stores a data interface or table in the module.
func (m *ProcessingModule) Add(obj core.Object) error {
	return m.AddChild("data_interfaces", obj)
}

func (m *ProcessingModule) Get(name string) (core.Object, bool) {
	return m.Child("data_interfaces", name)
}

func (m *ProcessingModule) DataInterfaces() []core.Object {
	return m.Children("data_interfaces")
}

// FileInfo is the session metadata every file carries.
type FileInfo struct {
	Identifier         string
	SessionDescription string
	SessionStart       time.Time
	// TimestampsReference defaults to SessionStart.
	TimestampsReference time.Time
	// CreatedAt defaults to the current time.
	CreatedAt time.Time
}

// NWBFile is the root of a file: acquired and processed data, hardware
// metadata and the electrodes table.
type NWBFile struct {
	*core.Container
}

func NewNWBFile(tm *core.TypeMap, info FileInfo) (*NWBFile, error) {
	if info.Identifier == "" || info.SessionDescription == "" {
		return nil, errs.MissingRequiredField("identifier", "a file needs an identifier and a session description")
	}
	if info.SessionStart.IsZero() {
		return nil, errs.MissingRequiredField("session_start_time", "a file needs a session start time")
	}
	if info.TimestampsReference.IsZero() {
		info.TimestampsReference = info.SessionStart
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}
	f, err := newTyped[*NWBFile](tm, CoreNamespace, "NWBFile", "root")
	if err != nil {
		return nil, err
	}
	if err := setFields(f.Container,
		fieldValue{"identifier", info.Identifier},
		fieldValue{"session_description", info.SessionDescription},
		fieldValue{"session_start_time", info.SessionStart},
		fieldValue{"timestamps_reference_time", info.TimestampsReference},
		fieldValue{"file_create_date", []time.Time{info.CreatedAt}},
	); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *NWBFile) Identifier(ctx context.Context) (string, error) {
	return textValue(ctx, f.Field("identifier"))
}

func (f *NWBFile) SessionDescription(ctx context.Context) (string, error) {
	return textValue(ctx, f.Field("session_description"))
}

func (f *NWBFile) SessionStartTime(ctx context.Context) (time.Time, error) {
	return timeValue(ctx, f.Field("session_start_time"))
}

func (f *NWBFile) TimestampsReferenceTime(ctx context.Context) (time.Time, error) {
	return timeValue(ctx, f.Field("timestamps_reference_time"))
}

func (f *NWBFile) FileCreateDate(ctx context.Context) ([]time.Time, error) {
	return timesValue(ctx, f.Field("file_create_date"))
}

// AddAcquisition stores raw acquired data.
func (f *NWBFile) AddAcquisition(obj core.Object) error {
	return f.AddChild("acquisition", obj)
}

func (f *NWBFile) Acquisition(name string) (core.Object, bool) {
	return f.Child("acquisition", name)
}

func (f *NWBFile) AddAnalysis(obj core.Object) error {
	return f.AddChild("analysis", obj)
}

func (f *NWBFile) AddProcessingModule(m *ProcessingModule) error {
	return f.AddChild("processing", m)
}

func (f *NWBFile) ProcessingModule(name string) (*ProcessingModule, bool) {
	obj, ok := f.Child("processing", name)
	if !ok {
		return nil, false
	}
	m, ok := obj.(*ProcessingModule)
	return m, ok
}

func (f *NWBFile) AddDevice(d *Device) error {
	return f.AddChild("devices", d)
}

func (f *NWBFile) Device(name string) (*Device, bool) {
	obj, ok := f.Child("devices", name)
	if !ok {
		return nil, false
	}
	d, ok := obj.(*Device)
	return d, ok
}

func (f *NWBFile) AddElectrodeGroup(g *ElectrodeGroup) error {
	return f.AddChild("electrode_groups", g)
}

func (f *NWBFile) ElectrodeGroup(name string) (*ElectrodeGroup, bool) {
	obj, ok := f.Child("electrode_groups", name)
	if !ok {
		return nil, false
	}
	g, ok := obj.(*ElectrodeGroup)
	return g, ok
}

// SetElectrodes installs the electrodes table, which must be named
// "electrodes".
func (f *NWBFile) SetElectrodes(table *DynamicTable) error {
	if table.Name() != "electrodes" {
		return errs.TypeMismatch("the electrodes table must be named %q, got %q", "electrodes", table.Name()).
			WithField("electrodes")
	}
	return f.Set("electrodes", table)
}

func (f *NWBFile) Electrodes() *DynamicTable {
	t, _ := f.Field("electrodes").(*DynamicTable)
	return t
}

// Metadata fields under /general.
func (f *NWBFile) SetExperimenter(names ...string) error { return f.Set("experimenter", names) }
func (f *NWBFile) SetLab(lab string) error               { return f.Set("lab", lab) }
func (f *NWBFile) SetInstitution(name string) error      { return f.Set("institution", name) }
func (f *NWBFile) SetSessionID(id string) error          { return f.Set("session_id", id) }
func (f *NWBFile) SetExperimentDescription(description string) error {
	return f.Set("experiment_description", description)
}

func (f *NWBFile) Experimenter(ctx context.Context) ([]string, error) {
	return textsValue(ctx, f.Field("experimenter"))
}

func (f *NWBFile) Lab(ctx context.Context) (string, error) {
	return textValue(ctx, f.Field("lab"))
}
