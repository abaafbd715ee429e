package nwb

import (
	"nwbio/internal/core"
	"nwbio/internal/types"
)

// Device describes acquisition hardware.
type Device struct {
	*core.Container
}

func NewDevice(tm *core.TypeMap, name string, description string, manufacturer string) (*Device, error) {
	d, err := newTyped[*Device](tm, CoreNamespace, "Device", name)
	if err != nil {
		return nil, err
	}
	if err := setFields(d.Container,
		fieldValue{"description", description},
		fieldValue{"manufacturer", manufacturer},
	); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) Description() string  { return stringAttr(d.Container, "description") }
func (d *Device) Manufacturer() string { return stringAttr(d.Container, "manufacturer") }

// ElectrodeGroup is a physical grouping of electrodes recorded by one
// device.  The device is linked, not owned.
type ElectrodeGroup struct {
	*core.Container
}

func NewElectrodeGroup(tm *core.TypeMap, name string, description string, location string, device *Device) (*ElectrodeGroup, error) {
	g, err := newTyped[*ElectrodeGroup](tm, CoreNamespace, "ElectrodeGroup", name)
	if err != nil {
		return nil, err
	}
	if err := setFields(g.Container,
		fieldValue{"description", description},
		fieldValue{"location", location},
	); err != nil {
		return nil, err
	}
	if device != nil {
		if err := g.Set("device", device); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *ElectrodeGroup) Description() string { return stringAttr(g.Container, "description") }
func (g *ElectrodeGroup) Location() string    { return stringAttr(g.Container, "location") }

// Device returns the linked device, or nil when the link points into
// another file.
func (g *ElectrodeGroup) Device() *Device {
	d, _ := g.Field("device").(*Device)
	return d
}

// ExternalDevice returns the target of a device link into another file.
func (g *ElectrodeGroup) ExternalDevice() (types.Reference, bool) {
	ref, ok := g.Field("device").(types.Reference)
	return ref, ok
}

// SetPosition records stereotaxic coordinates (x, y, z).
func (g *ElectrodeGroup) SetPosition(x float64, y float64, z float64) error {
	return g.Set("position", []float64{x, y, z})
}
