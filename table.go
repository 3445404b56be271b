package ecephys

import (
	"errors"
	"fmt"

	"github.com/scigolib/ecephys/internal/core"
)

// ColumnKind is the element kind of a table column.
type ColumnKind uint8

// Column kinds accepted by AddColumn.
const (
	ColFloat64 ColumnKind = iota
	ColInt64
	ColString
	ColBool
	// ColRegion columns hold row references into another table. Use
	// AddRegionColumn to declare one.
	ColRegion
)

// String returns the kind name.
func (k ColumnKind) String() string {
	switch k {
	case ColFloat64:
		return "float64"
	case ColInt64:
		return "int64"
	case ColString:
		return "string"
	case ColBool:
		return "bool"
	case ColRegion:
		return "region"
	default:
		return "unknown"
	}
}

// Row carries the values for one appended table row, keyed by column
// name. Every declared column must receive exactly one value from the
// map matching its kind.
type Row struct {
	Floats  map[string]float64
	Ints    map[string]int64
	Strings map[string]string
	Bools   map[string]bool
	// Regions maps region column names to a row index in the column's
	// target table.
	Regions map[string]uint64
}

type tableColumn struct {
	name        string
	kind        ColumnKind
	description string
	target      string // region columns only

	floats  []float64
	ints    []int64
	strings []string
	bools   []bool
	indices []int64
}

// TableWriter accumulates rows for one table. Columns are declared
// first; rows are appended after that and every row must cover every
// column. The table is written out when the session writer closes.
type TableWriter struct {
	path        string
	description string
	attrs       []*core.Attribute
	cols        []*tableColumn
	rows        uint64
}

// CreateTable stages a new table at path. Columns are declared on the
// returned writer before the first row is appended. The id column is
// implicit and assigns 0, 1, 2, ... in append order.
func (w *SessionWriter) CreateTable(path, description string) (*TableWriter, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if path == "/" {
		return nil, errors.New("cannot place a table at the root group")
	}
	if w.tableByPath(path) != nil {
		return nil, fmt.Errorf("table %q already exists", path)
	}
	if _, err := w.findStaged(path); err == nil {
		return nil, fmt.Errorf("path %q already exists", path)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	tw := &TableWriter{path: path, description: description}
	w.tables = append(w.tables, tw)
	return tw, nil
}

// Path returns the table's location in the file.
func (t *TableWriter) Path() string { return t.path }

// Len returns the number of appended rows.
func (t *TableWriter) Len() uint64 { return t.rows }

func (t *TableWriter) column(name string) *tableColumn {
	for _, col := range t.cols {
		if col.name == name {
			return col
		}
	}
	return nil
}

func (t *TableWriter) addColumn(col *tableColumn) error {
	if t.rows > 0 {
		return errors.New("columns are fixed after the first row")
	}
	if col.name == "" {
		return errors.New("column name must not be empty")
	}
	if col.name == "id" {
		return errors.New("column name \"id\" is reserved")
	}
	if t.column(col.name) != nil {
		return fmt.Errorf("column %q already exists", col.name)
	}
	t.cols = append(t.cols, col)
	return nil
}

// AddColumn declares a value column. ColRegion is rejected here; use
// AddRegionColumn, which also names the target table.
func (t *TableWriter) AddColumn(name string, kind ColumnKind, description string) error {
	if kind == ColRegion {
		return errors.New("region columns need a target table, use AddRegionColumn")
	}
	switch kind {
	case ColFloat64, ColInt64, ColString, ColBool:
	default:
		return fmt.Errorf("unknown column kind %d", kind)
	}
	return t.addColumn(&tableColumn{name: name, kind: kind, description: description})
}

// AddRegionColumn declares a column whose values reference rows of the
// table at targetPath. References are stored by row index and resolve
// through Session.ResolveRegion when the file is read back.
func (t *TableWriter) AddRegionColumn(name, description, targetPath string) error {
	if err := validatePath(targetPath); err != nil {
		return err
	}
	return t.addColumn(&tableColumn{
		name:        name,
		kind:        ColRegion,
		description: description,
		target:      targetPath,
	})
}

// Append adds one row. The row must provide a value for every declared
// column and nothing else.
func (t *TableWriter) Append(row Row) error {
	if err := t.checkRow(row); err != nil {
		return err
	}

	for _, col := range t.cols {
		switch col.kind {
		case ColFloat64:
			col.floats = append(col.floats, row.Floats[col.name])
		case ColInt64:
			col.ints = append(col.ints, row.Ints[col.name])
		case ColString:
			col.strings = append(col.strings, row.Strings[col.name])
		case ColBool:
			col.bools = append(col.bools, row.Bools[col.name])
		case ColRegion:
			//nolint:gosec // G115: row indices are bounded by table sizes
			col.indices = append(col.indices, int64(row.Regions[col.name]))
		}
	}
	t.rows++
	return nil
}

// checkRow verifies the row covers each column exactly once.
func (t *TableWriter) checkRow(row Row) error {
	provided := len(row.Floats) + len(row.Ints) + len(row.Strings) + len(row.Bools) + len(row.Regions)
	if provided != len(t.cols) {
		return fmt.Errorf("row provides %d values for %d columns", provided, len(t.cols))
	}

	for _, col := range t.cols {
		var ok bool
		switch col.kind {
		case ColFloat64:
			_, ok = row.Floats[col.name]
		case ColInt64:
			_, ok = row.Ints[col.name]
		case ColString:
			_, ok = row.Strings[col.name]
		case ColBool:
			_, ok = row.Bools[col.name]
		case ColRegion:
			_, ok = row.Regions[col.name]
		}
		if !ok {
			return fmt.Errorf("row is missing %s column %q", col.kind, col.name)
		}
	}
	return nil
}

// settle writes the table into the staged tree: a group at the table
// path with colnames and description attributes, the id dataset, and
// one dataset per column.
func (t *TableWriter) settle(w *SessionWriter) error {
	group, err := w.ensureGroupAt(t.path)
	if err != nil {
		return err
	}

	colnames := make([]string, len(t.cols))
	for i, col := range t.cols {
		colnames[i] = col.name
	}
	group.attrs = append(group.attrs,
		core.NewStringListAttribute("colnames", colnames),
		core.NewStringAttribute("description", t.description),
	)
	group.attrs = append(group.attrs, t.attrs...)

	//nolint:gosec // G115: row counts are far below int64 range
	ids := make([]int64, t.rows)
	for i := range ids {
		ids[i] = int64(i)
	}
	idArr, err := NewArray(ids, t.rows)
	if err != nil {
		return err
	}
	if err := w.stageDatasetAt(t.path+"/id", idArr); err != nil {
		return err
	}

	for _, col := range t.cols {
		if err := t.settleColumn(w, col); err != nil {
			return fmt.Errorf("column %q: %w", col.name, err)
		}
	}
	return nil
}

func (t *TableWriter) settleColumn(w *SessionWriter, col *tableColumn) error {
	var values any
	switch col.kind {
	case ColFloat64:
		values = col.floats
	case ColInt64:
		values = col.ints
	case ColString:
		values = col.strings
	case ColBool:
		values = col.bools
	case ColRegion:
		values = col.indices
	default:
		return fmt.Errorf("unknown column kind %d", col.kind)
	}

	arr, err := NewArray(values, t.rows)
	if err != nil {
		return err
	}

	var attrs []*core.Attribute
	if col.description != "" {
		attrs = append(attrs, core.NewStringAttribute("description", col.description))
	}
	if col.kind == ColRegion {
		attrs = append(attrs, core.NewStringAttribute("table", col.target))
	}
	return w.stageDatasetAt(t.path+"/"+col.name, arr, attrs...)
}

// Table is a read handle to a stored table: ordered named columns of
// equal length plus the id column. Column values load lazily.
type Table struct {
	sess     *Session
	path     string
	colnames []string
	rows     uint64
}

// Table opens the table stored at path. The object must carry a
// colnames attribute and an id dataset.
func (s *Session) Table(path string) (*Table, error) {
	header, err := s.header(path)
	if err != nil {
		return nil, err
	}
	if header.Type != core.ObjectTypeGroup {
		return nil, fmt.Errorf("path %q is not a table", path)
	}

	attr := header.Attr("colnames")
	if attr == nil {
		return nil, fmt.Errorf("path %q is not a table: no colnames attribute", path)
	}
	value, err := attr.ReadValue()
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", path, err)
	}

	var colnames []string
	switch v := value.(type) {
	case nil: // zero columns
	case []string:
		colnames = v
	case string:
		colnames = []string{v}
	default:
		return nil, fmt.Errorf("table %q: colnames is %T, want strings", path, value)
	}

	id, err := s.Dataset(joinObjectPath(path, "id"))
	if err != nil {
		return nil, fmt.Errorf("table %q has no id dataset: %w", path, err)
	}

	return &Table{sess: s, path: path, colnames: colnames, rows: id.Len()}, nil
}

// Path returns the table's location in the file.
func (t *Table) Path() string { return t.path }

// Len returns the row count.
func (t *Table) Len() uint64 { return t.rows }

// ColumnNames returns the column names in their stored order, not
// including id.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.colnames))
	copy(names, t.colnames)
	return names
}

// Description returns the table description attribute.
func (t *Table) Description() (string, error) {
	value, err := t.sess.Attr(t.path, "description")
	if err != nil {
		return "", err
	}
	desc, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("table %q: description is %T, want string", t.path, value)
	}
	return desc, nil
}

// IDs returns the row identifiers in row order.
func (t *Table) IDs() ([]int64, error) {
	id, err := t.sess.Dataset(joinObjectPath(t.path, "id"))
	if err != nil {
		return nil, err
	}
	arr, err := id.Materialize()
	if err != nil {
		return nil, err
	}
	return arr.Int64s()
}

// Column returns a lazy handle to the named column's values.
func (t *Table) Column(name string) (*Dataset, error) {
	if !t.hasColumn(name) {
		return nil, fmt.Errorf("table %q has no column %q: %w", t.path, name, ErrNotFound)
	}
	return t.sess.Dataset(joinObjectPath(t.path, name))
}

// floats materializes a float64 column in full.
func (t *Table) floats(name string) ([]float64, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	arr, err := col.Materialize()
	if err != nil {
		return nil, err
	}
	return arr.Float64s()
}

func (t *Table) hasColumn(name string) bool {
	if name == "id" {
		return true
	}
	for _, col := range t.colnames {
		if col == name {
			return true
		}
	}
	return false
}

// Region reads the named region column and returns the reference it
// holds: the target table path and the stored row indices in order.
func (t *Table) Region(name string) (*TableRegion, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	return regionFromDataset(col)
}
