package ecephys

import (
	"errors"
	"fmt"
)

// TableRegion references an ordered selection of rows in a table. The
// reference names the table by path and keeps row indices, so it stays
// valid across materializations but breaks if the table is removed.
type TableRegion struct {
	TablePath string
	Indices   []uint64
}

// NewRegion builds a reference to the given rows of the table at
// tablePath, in the given order. Indices may repeat.
func NewRegion(tablePath string, indices []uint64) TableRegion {
	out := make([]uint64, len(indices))
	copy(out, indices)
	return TableRegion{TablePath: tablePath, Indices: out}
}

// NewRowRange builds a reference to count consecutive rows starting at
// start.
func NewRowRange(tablePath string, start, count uint64) TableRegion {
	indices := make([]uint64, count)
	for i := range indices {
		indices[i] = start + uint64(i)
	}
	return TableRegion{TablePath: tablePath, Indices: indices}
}

// Len returns the number of referenced rows.
func (r TableRegion) Len() int { return len(r.Indices) }

// regionFromDataset reads a region reference stored as an index
// dataset: int64 row indices plus a "table" attribute naming the
// target table.
func regionFromDataset(d *Dataset) (*TableRegion, error) {
	target, err := d.Attr("table")
	if err != nil {
		return nil, fmt.Errorf("dataset %q is not a region reference: %w", d.Path(), err)
	}
	targetPath, ok := target.(string)
	if !ok {
		return nil, fmt.Errorf("dataset %q: table attribute is %T, want string", d.Path(), target)
	}

	arr, err := d.Materialize()
	if err != nil {
		return nil, err
	}
	raw, err := arr.Int64s()
	if err != nil {
		return nil, err
	}

	indices := make([]uint64, len(raw))
	for i, idx := range raw {
		if idx < 0 {
			return nil, fmt.Errorf("dataset %q holds negative row index %d", d.Path(), idx)
		}
		indices[i] = uint64(idx)
	}
	return &TableRegion{TablePath: targetPath, Indices: indices}, nil
}

// ResolveRegion resolves a region reference to the row identifiers of
// the referenced rows, in reference order.
//
// ErrBrokenReference when the target table no longer resolves.
// ErrIndexOutOfRange when any index is at or past the table's row
// count; no identifiers are returned in that case.
func (s *Session) ResolveRegion(region TableRegion) ([]int64, error) {
	table, err := s.Table(region.TablePath)
	if err != nil {
		return nil, fmt.Errorf("region target %q: %w", region.TablePath,
			errors.Join(ErrBrokenReference, err))
	}

	rows := table.Len()
	for _, idx := range region.Indices {
		if idx >= rows {
			return nil, fmt.Errorf("region index %d exceeds %d rows of %q: %w",
				idx, rows, region.TablePath, ErrIndexOutOfRange)
		}
	}

	ids, err := table.IDs()
	if err != nil {
		return nil, err
	}

	resolved := make([]int64, len(region.Indices))
	for i, idx := range region.Indices {
		resolved[i] = ids[idx]
	}
	return resolved, nil
}
