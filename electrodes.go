package ecephys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scigolib/ecephys/internal/core"
)

// Electrode describes one recording channel appended to the electrode
// table. Group names an electrode group added beforehand.
type Electrode struct {
	X, Y, Z   float64 // position in meters
	Imp       float64 // impedance in ohms
	Location  string  // recorded brain area
	Filtering string
	Group     string
	Label     string
}

func validateName(kind, name string) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}

// AddDevice records a recording device under /general/devices.
func (w *SessionWriter) AddDevice(name, description, manufacturer string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := validateName("device", name); err != nil {
		return err
	}
	path := joinObjectPath(devicesPath, name)
	if _, err := w.findStaged(path); err == nil {
		return fmt.Errorf("path %q already exists", path)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	group, err := w.ensureGroupAt(path)
	if err != nil {
		return err
	}
	group.attrs = append(group.attrs,
		core.NewStringAttribute("neurodata_type", "Device"),
		core.NewStringAttribute("description", description),
		core.NewStringAttribute("manufacturer", manufacturer),
	)
	return nil
}

// AddElectrodeGroup records a group of electrodes on one device under
// /general/extracellular_ephys. The device must have been added; the
// group links to it.
func (w *SessionWriter) AddElectrodeGroup(name, description, location, device string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := validateName("electrode group", name); err != nil {
		return err
	}
	devicePath := joinObjectPath(devicesPath, device)
	if _, err := w.findStaged(devicePath); err != nil {
		return fmt.Errorf("device %q: %w", device, err)
	}

	path := joinObjectPath(ephysPath, name)
	if _, err := w.findStaged(path); err == nil {
		return fmt.Errorf("path %q already exists", path)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	group, err := w.ensureGroupAt(path)
	if err != nil {
		return err
	}
	group.attrs = append(group.attrs,
		core.NewStringAttribute("neurodata_type", "ElectrodeGroup"),
		core.NewStringAttribute("description", description),
		core.NewStringAttribute("location", location),
	)
	return w.CreateSoftLink(joinObjectPath(path, "device"), devicePath)
}

// electrodeTable returns the pending electrode table, creating it with
// its standard columns on first use.
func (w *SessionWriter) electrodeTable() (*TableWriter, error) {
	if tw := w.tableByPath(electrodesPath); tw != nil {
		return tw, nil
	}

	tw, err := w.CreateTable(electrodesPath, "metadata about extracellular electrodes")
	if err != nil {
		return nil, err
	}

	type col struct {
		name string
		kind ColumnKind
		desc string
	}
	for _, c := range []col{
		{"x", ColFloat64, "x coordinate of the channel location in meters"},
		{"y", ColFloat64, "y coordinate of the channel location in meters"},
		{"z", ColFloat64, "z coordinate of the channel location in meters"},
		{"imp", ColFloat64, "impedance of the channel in ohms"},
		{"location", ColString, "brain area of the channel"},
		{"filtering", ColString, "hardware filtering applied to the channel"},
		{"group_name", ColString, "name of the electrode group the channel belongs to"},
		{"label", ColString, "channel label"},
	} {
		if err := tw.AddColumn(c.name, c.kind, c.desc); err != nil {
			return nil, err
		}
	}
	return tw, nil
}

// AddElectrode appends one electrode to the electrode table and
// returns its row index. Series channels reference these indices
// through WithElectrodes.
func (w *SessionWriter) AddElectrode(e Electrode) (uint64, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	if _, err := w.findStaged(joinObjectPath(ephysPath, e.Group)); err != nil {
		return 0, fmt.Errorf("electrode group %q: %w", e.Group, err)
	}

	tw, err := w.electrodeTable()
	if err != nil {
		return 0, err
	}

	row := Row{
		Floats: map[string]float64{
			"x":   e.X,
			"y":   e.Y,
			"z":   e.Z,
			"imp": e.Imp,
		},
		Strings: map[string]string{
			"location":   e.Location,
			"filtering":  e.Filtering,
			"group_name": e.Group,
			"label":      e.Label,
		},
	}
	index := tw.Len()
	if err := tw.Append(row); err != nil {
		return 0, err
	}
	return index, nil
}
