package ecephys

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scigolib/ecephys/internal/core"
	"github.com/scigolib/ecephys/internal/writer"
)

// Well-known paths in a session file.
const (
	acquisitionPath = "/acquisition"
	devicesPath     = "/general/devices"
	ephysPath       = "/general/extracellular_ephys"
	electrodesPath  = "/general/extracellular_ephys/electrodes"
	trialsPath      = "/intervals/trials"
	processingPath  = "/processing"
	unitsPath       = "/units"
)

// CreateMode specifies how Create treats an existing file.
type CreateMode int

const (
	// CreateTruncate creates a new file, overwriting if it exists.
	CreateTruncate CreateMode = iota

	// CreateExclusive creates a new file, failing if it already exists.
	CreateExclusive
)

type createConfig struct {
	identifier  string
	description string
	startTime   time.Time
	mode        CreateMode
}

// CreateOption configures a session created with Create.
type CreateOption func(*createConfig) error

// WithIdentifier sets the session identifier. Without it a random
// UUID is assigned.
func WithIdentifier(id string) CreateOption {
	return func(cfg *createConfig) error {
		if id == "" {
			return errors.New("identifier must not be empty")
		}
		cfg.identifier = id
		return nil
	}
}

// WithSessionDescription sets the session description.
func WithSessionDescription(desc string) CreateOption {
	return func(cfg *createConfig) error {
		cfg.description = desc
		return nil
	}
}

// WithStartTime sets the session start time. Without it the creation
// time is used.
func WithStartTime(t time.Time) CreateOption {
	return func(cfg *createConfig) error {
		if t.IsZero() {
			return errors.New("start time must not be zero")
		}
		cfg.startTime = t
		return nil
	}
}

// WithExclusiveCreate makes Create fail if the file already exists.
func WithExclusiveCreate() CreateOption {
	return func(cfg *createConfig) error {
		cfg.mode = CreateExclusive
		return nil
	}
}

// SessionWriter builds a new session file. Dataset values are written
// to disk as they are added; object metadata is staged in memory and
// flushed when Close assembles the final file. A file being written is
// not readable until Close returns.
//
// Not safe for concurrent use: one writer owns the file it is
// building.
type SessionWriter struct {
	fw     *writer.FileWriter
	root   *stagedGroup
	tables []*TableWriter
	units  *UnitsWriter
	closed bool
}

// stagedObject is a node of the in-memory object tree: a group, a
// dataset whose payload is already on disk, or a soft link.
type stagedObject interface {
	objectName() string
}

type stagedGroup struct {
	name     string
	attrs    []*core.Attribute
	children []stagedObject // creation order
}

func (g *stagedGroup) objectName() string { return g.name }

type stagedDataset struct {
	name        string
	dtypeMsg    []byte
	spaceMsg    []byte
	payloadAddr uint64
	payloadSize uint64
	attrs       []*core.Attribute
}

func (d *stagedDataset) objectName() string { return d.name }

type stagedSoftLink struct {
	name   string
	target string
}

func (l *stagedSoftLink) objectName() string { return l.name }

// Create creates a new session file for writing.
func Create(path string, opts ...CreateOption) (*SessionWriter, error) {
	cfg := createConfig{
		identifier: uuid.NewString(),
		startTime:  time.Now().UTC(),
		mode:       CreateTruncate,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	var writerMode writer.CreateMode
	switch cfg.mode {
	case CreateTruncate:
		writerMode = writer.ModeTruncate
	case CreateExclusive:
		writerMode = writer.ModeExclusive
	default:
		return nil, fmt.Errorf("invalid create mode: %d", cfg.mode)
	}

	fw, err := writer.NewFileWriter(path, writerMode, core.SuperblockSize)
	if err != nil {
		return nil, ioError("session create failed", err)
	}

	root := &stagedGroup{
		attrs: []*core.Attribute{
			core.NewStringAttribute("identifier", cfg.identifier),
			core.NewStringAttribute("session_description", cfg.description),
			core.NewStringAttribute("session_start_time", cfg.startTime.Format(time.RFC3339Nano)),
		},
	}

	return &SessionWriter{fw: fw, root: root}, nil
}

// Filename returns the path of the file being written.
func (w *SessionWriter) Filename() string { return w.fw.Name() }

func (w *SessionWriter) checkOpen() error {
	if w.closed {
		return errors.New("session writer is closed")
	}
	return nil
}

// validatePath checks that path is absolute with non-empty components.
func validatePath(path string) error {
	if path == "/" {
		return nil
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path %q is not absolute", path)
	}
	if strings.HasSuffix(path, "/") {
		return fmt.Errorf("path %q has a trailing slash", path)
	}
	for _, part := range strings.Split(path[1:], "/") {
		if part == "" {
			return fmt.Errorf("path %q has an empty component", path)
		}
	}
	return nil
}

// findChild returns the child with the given name, or nil.
func (g *stagedGroup) findChild(name string) stagedObject {
	for _, child := range g.children {
		if child.objectName() == name {
			return child
		}
	}
	return nil
}

// removeChild deletes the named child, preserving the order of the
// rest. Reports whether a child was removed.
func (g *stagedGroup) removeChild(name string) bool {
	for i, child := range g.children {
		if child.objectName() == name {
			g.children = append(g.children[:i], g.children[i+1:]...)
			return true
		}
	}
	return false
}

// ensureGroupAt walks path from the root, creating missing groups.
func (w *SessionWriter) ensureGroupAt(path string) (*stagedGroup, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if path == "/" {
		return w.root, nil
	}

	current := w.root
	walked := ""
	for _, part := range strings.Split(path[1:], "/") {
		walked += "/" + part
		child := current.findChild(part)
		if child == nil {
			next := &stagedGroup{name: part}
			current.children = append(current.children, next)
			current = next
			continue
		}
		next, ok := child.(*stagedGroup)
		if !ok {
			return nil, fmt.Errorf("path %q exists and is not a group", walked)
		}
		current = next
	}
	return current, nil
}

// findStaged resolves a path to its staged object. Soft links are not
// followed; they resolve only in a finished file.
func (w *SessionWriter) findStaged(path string) (stagedObject, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if path == "/" {
		return w.root, nil
	}

	var current stagedObject = w.root
	walked := ""
	for _, part := range strings.Split(path[1:], "/") {
		walked += "/" + part
		group, ok := current.(*stagedGroup)
		if !ok {
			return nil, fmt.Errorf("path %q is not a group", strings.TrimSuffix(walked, "/"+part))
		}
		child := group.findChild(part)
		if child == nil {
			return nil, fmt.Errorf("path %q: %w", walked, ErrNotFound)
		}
		current = child
	}
	return current, nil
}

// stageDatasetAt writes the array's payload to disk and stages a
// dataset node at path. Missing parent groups are created.
func (w *SessionWriter) stageDatasetAt(path string, arr *Array, attrs ...*core.Attribute) error {
	raw, dtypeName, elem, err := encodeValues(arr.Value())
	if err != nil {
		return err
	}

	dtypeMsg, err := encodeDatatypeFor(dtypeName, elem)
	if err != nil {
		return err
	}
	spaceMsg, err := core.EncodeSimpleDataspace(arr.Shape())
	if err != nil {
		return err
	}

	return w.stageRaw(path, raw, dtypeMsg, spaceMsg, attrs)
}

// stageScalarAt writes a single value to disk and stages a scalar
// dataset node at path.
func (w *SessionWriter) stageScalarAt(path string, value any, attrs ...*core.Attribute) error {
	slice, err := scalarSlice(value)
	if err != nil {
		return err
	}
	raw, dtypeName, elem, err := encodeValues(slice)
	if err != nil {
		return err
	}
	dtypeMsg, err := encodeDatatypeFor(dtypeName, elem)
	if err != nil {
		return err
	}
	return w.stageRaw(path, raw, dtypeMsg, core.EncodeScalarDataspace(), attrs)
}

func (w *SessionWriter) stageRaw(path string, raw, dtypeMsg, spaceMsg []byte, attrs []*core.Attribute) error {
	parentPath, name := splitObjectPath(path)
	parent, err := w.ensureGroupAt(parentPath)
	if err != nil {
		return err
	}
	if parent.findChild(name) != nil {
		return fmt.Errorf("path %q already exists", path)
	}

	payloadAddr := uint64(core.UndefinedAddress)
	if len(raw) > 0 {
		payloadAddr, err = w.fw.WriteAtWithAllocation(raw)
		if err != nil {
			return ioError(fmt.Sprintf("write dataset %q", path), err)
		}
	}

	parent.children = append(parent.children, &stagedDataset{
		name:        name,
		dtypeMsg:    dtypeMsg,
		spaceMsg:    spaceMsg,
		payloadAddr: payloadAddr,
		payloadSize: uint64(len(raw)),
		attrs:       attrs,
	})
	return nil
}

// encodeDatatypeFor maps an element kind to its encoded datatype
// message. elem is the byte width, used for string widths.
func encodeDatatypeFor(dtype string, elem uint64) ([]byte, error) {
	switch dtype {
	case "float64":
		return core.EncodeFloatDatatype(8)
	case "float32":
		return core.EncodeFloatDatatype(4)
	case "int64":
		return core.EncodeFixedDatatype(8, true), nil
	case "int32":
		return core.EncodeFixedDatatype(4, true), nil
	case "int16":
		return core.EncodeFixedDatatype(2, true), nil
	case "int8":
		return core.EncodeFixedDatatype(1, true), nil
	case "string":
		//nolint:gosec // G115: string widths are bounded by the 2-byte message size
		return core.EncodeStringDatatype(uint32(elem)), nil
	default:
		return nil, fmt.Errorf("unsupported element kind %q", dtype)
	}
}

// scalarSlice lifts a scalar value into the one-element slice form the
// value codec works on.
func scalarSlice(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return []float64{v}, nil
	case float32:
		return []float32{v}, nil
	case int64:
		return []int64{v}, nil
	case int:
		return []int64{int64(v)}, nil
	case int32:
		return []int32{v}, nil
	case string:
		return []string{v}, nil
	case bool:
		return []bool{v}, nil
	default:
		return nil, fmt.Errorf("unsupported scalar type %T", value)
	}
}

// makeAttribute builds an attribute from a Go value.
func makeAttribute(name string, value any) (*core.Attribute, error) {
	switch v := value.(type) {
	case string:
		return core.NewStringAttribute(name, v), nil
	case []string:
		return core.NewStringListAttribute(name, v), nil
	case float64:
		return core.NewFloat64Attribute(name, v), nil
	case int64:
		return core.NewInt64Attribute(name, v), nil
	case int:
		return core.NewInt64Attribute(name, int64(v)), nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", value)
	}
}

// CreateGroup creates the group at path, along with any missing
// parents. Existing groups along the way are left as they are.
func (w *SessionWriter) CreateGroup(path string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	_, err := w.ensureGroupAt(path)
	return err
}

// SetAttr sets an attribute on the group or dataset at path. Setting
// the same name again replaces the value. Accepted value types:
// string, []string, float64, int64 and int.
func (w *SessionWriter) SetAttr(path, name string, value any) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	obj, err := w.findStaged(path)
	if err != nil {
		return err
	}
	attr, err := makeAttribute(name, value)
	if err != nil {
		return err
	}

	switch o := obj.(type) {
	case *stagedGroup:
		o.attrs = replaceAttr(o.attrs, attr)
	case *stagedDataset:
		o.attrs = replaceAttr(o.attrs, attr)
	default:
		return fmt.Errorf("path %q cannot hold attributes", path)
	}
	return nil
}

func replaceAttr(attrs []*core.Attribute, attr *core.Attribute) []*core.Attribute {
	for i, existing := range attrs {
		if existing.Name == attr.Name {
			attrs[i] = attr
			return attrs
		}
	}
	return append(attrs, attr)
}

// WriteDataset stores values as a dataset at path. values takes the
// same types as NewArray; the optional shape gives the extents of a
// multi-dimensional dataset and defaults to 1-D.
func (w *SessionWriter) WriteDataset(path string, values any, shape ...uint64) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	arr, err := NewArray(values, shape...)
	if err != nil {
		return err
	}
	return w.stageDatasetAt(path, arr)
}

// WriteScalar stores a single value as a scalar dataset at path.
func (w *SessionWriter) WriteScalar(path string, value any) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	return w.stageScalarAt(path, value)
}

// CreateSoftLink creates a soft link at path pointing at target, an
// absolute path that is resolved when the finished file is read.
func (w *SessionWriter) CreateSoftLink(path, target string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := validatePath(target); err != nil {
		return err
	}
	parentPath, name := splitObjectPath(path)
	parent, err := w.ensureGroupAt(parentPath)
	if err != nil {
		return err
	}
	if parent.findChild(name) != nil {
		return fmt.Errorf("path %q already exists", path)
	}
	parent.children = append(parent.children, &stagedSoftLink{name: name, target: target})
	return nil
}

// RemoveObject removes the staged object at path, including a whole
// subtree for groups. Payload bytes already written for removed
// datasets are not reclaimed; they become dead space in the finished
// file. Region references that name a removed table fail to resolve
// with ErrBrokenReference when the file is read back.
func (w *SessionWriter) RemoveObject(path string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := validatePath(path); err != nil {
		return err
	}
	if path == "/" {
		return errors.New("cannot remove the root group")
	}

	if w.dropPending(path) {
		return nil
	}

	parentPath, name := splitObjectPath(path)
	obj, err := w.findStaged(parentPath)
	if err != nil {
		return err
	}
	parent, ok := obj.(*stagedGroup)
	if !ok {
		return fmt.Errorf("path %q is not a group", parentPath)
	}
	if !parent.removeChild(name) {
		return fmt.Errorf("path %q: %w", path, ErrNotFound)
	}
	return nil
}

// dropPending discards a table or units writer whose datasets have not
// been settled into the tree yet. Reports whether path named one.
func (w *SessionWriter) dropPending(path string) bool {
	for i, tw := range w.tables {
		if tw.path == path {
			w.tables = append(w.tables[:i], w.tables[i+1:]...)
			return true
		}
	}
	if w.units != nil && path == unitsPath {
		w.units = nil
		return true
	}
	return false
}

// tableByPath returns the pending table writer staged at path, or nil.
func (w *SessionWriter) tableByPath(path string) *TableWriter {
	for _, tw := range w.tables {
		if tw.path == path {
			return tw
		}
	}
	return nil
}

// Close settles pending tables, flushes all staged metadata and writes
// the file header. Safe to call multiple times; only the first call
// does the work.
func (w *SessionWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finish()
	if cerr := w.fw.Close(); err == nil {
		err = cerr
	}
	return err
}

func (w *SessionWriter) finish() error {
	for _, tw := range w.tables {
		if err := tw.settle(w); err != nil {
			return fmt.Errorf("settle table %q: %w", tw.path, err)
		}
	}
	if w.units != nil {
		if err := w.units.settle(w); err != nil {
			return fmt.Errorf("settle units: %w", err)
		}
	}

	rootAddr, err := w.flushGroup(w.root)
	if err != nil {
		return err
	}

	sb := &core.Superblock{
		Version:    core.Version2,
		OffsetSize: 8,
		LengthSize: 8,
		BaseAddr:   0,
		RootGroup:  rootAddr,
	}
	if err := sb.WriteTo(w.fw, w.fw.EndOfFile()); err != nil {
		return fmt.Errorf("superblock write failed: %w", err)
	}

	if err := w.fw.Flush(); err != nil {
		return ioError("session flush failed", err)
	}
	return nil
}

// flushGroup writes a group's children bottom-up, then the group's own
// object header, and returns the header address.
func (w *SessionWriter) flushGroup(g *stagedGroup) (uint64, error) {
	header := core.NewGroupHeader()

	for _, child := range g.children {
		var link *core.LinkMessage
		switch c := child.(type) {
		case *stagedGroup:
			addr, err := w.flushGroup(c)
			if err != nil {
				return 0, err
			}
			link = core.NewHardLink(c.name, addr)
		case *stagedDataset:
			addr, err := w.flushDataset(c)
			if err != nil {
				return 0, err
			}
			link = core.NewHardLink(c.name, addr)
		case *stagedSoftLink:
			link = core.NewSoftLink(c.name, c.target)
		default:
			return 0, fmt.Errorf("unknown staged object %T", child)
		}

		encoded, err := core.EncodeLinkMessage(link)
		if err != nil {
			return 0, fmt.Errorf("link %q: %w", link.Name, err)
		}
		header.AddMessage(core.MsgLinkMessage, encoded)
	}

	if err := addAttributeMessages(header, g.attrs); err != nil {
		return 0, err
	}
	return w.writeHeader(header)
}

func (w *SessionWriter) flushDataset(d *stagedDataset) (uint64, error) {
	layout := core.EncodeContiguousLayout(d.payloadAddr, d.payloadSize)
	header := core.NewDatasetHeader(d.spaceMsg, d.dtypeMsg, layout)
	if err := addAttributeMessages(header, d.attrs); err != nil {
		return 0, err
	}
	return w.writeHeader(header)
}

func addAttributeMessages(header *core.ObjectHeaderWriter, attrs []*core.Attribute) error {
	for _, attr := range attrs {
		encoded, err := core.EncodeAttributeMessage(attr)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", attr.Name, err)
		}
		header.AddMessage(core.MsgAttribute, encoded)
	}
	return nil
}

func (w *SessionWriter) writeHeader(header *core.ObjectHeaderWriter) (uint64, error) {
	addr, err := w.fw.Allocate(header.Size())
	if err != nil {
		return 0, err
	}
	if _, err := header.WriteTo(w.fw, addr); err != nil {
		return 0, ioError("object header write", err)
	}
	return addr, nil
}
