// Package ecephys stores and reads extracellular electrophysiology
// sessions: raw acquisitions, electrode metadata, trial intervals,
// sorted units and region references between them. Files are written
// as a strict subset of HDF5, so standard HDF5 tooling can inspect
// them. Reads are lazy: opening a session or a dataset touches only
// metadata, and values are fetched on demand.
package ecephys

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/scigolib/ecephys/internal/core"
	"github.com/scigolib/ecephys/internal/utils"
)

// ObjectKind classifies objects found while walking a session tree.
type ObjectKind uint8

// Object kinds reported by Walk.
const (
	KindGroup ObjectKind = iota
	KindDataset
	KindUnknown
)

// String returns the kind name for logs and listings.
func (k ObjectKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	default:
		return "unknown"
	}
}

// Session is an open session file. It is safe for concurrent readers;
// all methods only read.
type Session struct {
	mu      sync.RWMutex
	f       *os.File
	sb      *core.Superblock
	size    int64
	headers map[string]*core.ObjectHeader
}

// Open opens a session file for reading.
func Open(path string) (*Session, error) {
	//nolint:gosec // G304: caller-provided session path is the API
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("session open failed", err)
	}

	if !isSessionFile(f) {
		_ = f.Close()
		return nil, errors.New("not a session file")
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ioError("session stat failed", err)
	}

	sb, err := core.ReadSuperblock(f)
	if err != nil {
		_ = f.Close()
		return nil, utils.WrapError("superblock read failed", err)
	}

	if sb.RootGroup >= uint64(fi.Size()) {
		_ = f.Close()
		return nil, fmt.Errorf("root group address %d beyond file size %d", sb.RootGroup, fi.Size())
	}

	s := &Session{
		f:       f,
		sb:      sb,
		size:    fi.Size(),
		headers: make(map[string]*core.ObjectHeader),
	}

	// Parse the root header eagerly so a corrupt file fails at Open.
	if _, err := s.header("/"); err != nil {
		_ = f.Close()
		return nil, utils.WrapError("root group load failed", err)
	}

	return s, nil
}

// isSessionFile verifies the HDF5 signature.
func isSessionFile(f *os.File) bool {
	buf := make([]byte, 8)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return false
	}
	return string(buf) == core.Signature
}

// Close releases the file handle. Safe to call multiple times; lazy
// handles created from this session fail afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// readAt reads raw bytes at a file address.
func (s *Session) readAt(buf []byte, addr uint64) error {
	s.mu.RLock()
	f := s.f
	s.mu.RUnlock()

	if f == nil {
		return errors.New("session is closed")
	}
	//nolint:gosec // G115: file addresses fit in int64 for io.ReaderAt
	_, err := f.ReadAt(buf, int64(addr))
	return err
}

// sessionReader adapts readAt for the core parsers.
type sessionReader struct {
	s *Session
}

func (r sessionReader) ReadAt(p []byte, off int64) (int, error) {
	if err := r.s.readAt(p, uint64(off)); err != nil {
		return 0, err
	}
	return len(p), nil
}

const maxLinkDepth = 40

// header resolves an absolute path to its parsed object header,
// following hard and soft links. Results are cached.
func (s *Session) header(path string) (*core.ObjectHeader, error) {
	return s.headerDepth(path, 0)
}

func (s *Session) headerDepth(path string, depth int) (*core.ObjectHeader, error) {
	if depth > maxLinkDepth {
		return nil, fmt.Errorf("path %q: too many levels of soft links", path)
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path %q is not absolute", path)
	}

	s.mu.RLock()
	cached, ok := s.headers[path]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	header, err := s.loadHeader(path, depth)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.headers[path] = header
	s.mu.Unlock()
	return header, nil
}

func (s *Session) loadHeader(path string, depth int) (*core.ObjectHeader, error) {
	if path == "/" {
		header, err := core.ReadObjectHeader(sessionReader{s}, s.sb.RootGroup)
		if err != nil {
			return nil, utils.WrapError("root header parse failed", err)
		}
		return header, nil
	}

	parentPath, name := splitObjectPath(path)
	parent, err := s.headerDepth(parentPath, depth)
	if err != nil {
		return nil, err
	}

	link, err := findLink(parent, name)
	if err != nil {
		return nil, fmt.Errorf("path %q: %w", path, err)
	}
	if link == nil {
		return nil, fmt.Errorf("path %q: %w", path, ErrNotFound)
	}

	switch link.Type {
	case core.LinkTypeHard:
		addr, err := link.GetHardLinkAddress()
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		if addr >= uint64(s.size) {
			return nil, fmt.Errorf("path %q: object address %d beyond file size %d", path, addr, s.size)
		}
		header, err := core.ReadObjectHeader(sessionReader{s}, addr)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		return header, nil

	case core.LinkTypeSoft:
		target, err := link.GetSoftLinkPath()
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		if !strings.HasPrefix(target, "/") {
			return nil, fmt.Errorf("path %q: soft link target %q is not absolute", path, target)
		}
		return s.headerDepth(target, depth+1)

	default:
		return nil, fmt.Errorf("path %q: unsupported link type %s", path, link.Type)
	}
}

// splitObjectPath splits "/a/b/c" into "/a/b" and "c".
func splitObjectPath(path string) (parent, name string) {
	idx := strings.LastIndex(path, "/")
	if idx == 0 {
		return "/", path[1:]
	}
	return path[:idx], path[idx+1:]
}

// findLink scans a group header for a link with the given name.
func findLink(group *core.ObjectHeader, name string) (*core.LinkMessage, error) {
	for _, msg := range group.Messages {
		if msg.Type != core.MsgLinkMessage {
			continue
		}
		lm, err := core.ParseLinkMessage(msg.Data)
		if err != nil {
			return nil, utils.WrapError("link message parse failed", err)
		}
		if lm.Name == name {
			return lm, nil
		}
	}
	return nil, nil
}

// Exists reports whether a path resolves to an object.
func (s *Session) Exists(path string) bool {
	_, err := s.header(path)
	return err == nil
}

// Identifier returns the session identifier written at creation.
func (s *Session) Identifier() (string, error) {
	return s.rootStringAttr("identifier")
}

// Description returns the session description.
func (s *Session) Description() (string, error) {
	return s.rootStringAttr("session_description")
}

// StartTime returns the session start time.
func (s *Session) StartTime() (time.Time, error) {
	raw, err := s.rootStringAttr("session_start_time")
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed session_start_time %q: %w", raw, err)
	}
	return ts, nil
}

func (s *Session) rootStringAttr(name string) (string, error) {
	value, err := s.Attr("/", name)
	if err != nil {
		return "", err
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("attribute %q is %T, want string", name, value)
	}
	return str, nil
}

// Attr returns a decoded attribute of the object at path. ErrNotFound
// when the object has no such attribute.
func (s *Session) Attr(path, name string) (any, error) {
	header, err := s.header(path)
	if err != nil {
		return nil, err
	}
	attr := header.Attr(name)
	if attr == nil {
		return nil, fmt.Errorf("attribute %q at %q: %w", name, path, ErrNotFound)
	}
	return attr.ReadValue()
}

// List returns the child names of a group in creation order.
func (s *Session) List(path string) ([]string, error) {
	header, err := s.header(path)
	if err != nil {
		return nil, err
	}
	if header.Type != core.ObjectTypeGroup {
		return nil, fmt.Errorf("path %q is not a group", path)
	}

	var names []string
	for _, msg := range header.Messages {
		if msg.Type != core.MsgLinkMessage {
			continue
		}
		lm, err := core.ParseLinkMessage(msg.Data)
		if err != nil {
			return nil, utils.WrapError("link message parse failed", err)
		}
		names = append(names, lm.Name)
	}
	return names, nil
}

// Dataset returns a lazy handle to the dataset at path. Only metadata
// is read; values stay on disk until materialized.
func (s *Session) Dataset(path string) (*Dataset, error) {
	header, err := s.header(path)
	if err != nil {
		return nil, err
	}
	if header.Type != core.ObjectTypeDataset {
		return nil, fmt.Errorf("path %q is not a dataset", path)
	}
	return newDataset(s, path, header)
}

// Walk visits every object under root in depth-first creation order,
// starting with the root group itself. Traversal stops at the first
// error from fn and returns it. Soft links are reported but not
// followed, so aliased subtrees are visited once.
func (s *Session) Walk(fn func(path string, kind ObjectKind) error) error {
	return s.walk("/", fn)
}

func (s *Session) walk(path string, fn func(string, ObjectKind) error) error {
	header, err := s.header(path)
	if err != nil {
		return err
	}

	kind := KindUnknown
	switch header.Type {
	case core.ObjectTypeGroup:
		kind = KindGroup
	case core.ObjectTypeDataset:
		kind = KindDataset
	}

	if err := fn(path, kind); err != nil {
		return err
	}
	if kind != KindGroup {
		return nil
	}

	for _, msg := range header.Messages {
		if msg.Type != core.MsgLinkMessage {
			continue
		}
		lm, err := core.ParseLinkMessage(msg.Data)
		if err != nil {
			return utils.WrapError("link message parse failed", err)
		}

		childPath := joinObjectPath(path, lm.Name)
		if lm.Type == core.LinkTypeSoft {
			if err := fn(childPath, KindUnknown); err != nil {
				return err
			}
			continue
		}
		if err := s.walk(childPath, fn); err != nil {
			return err
		}
	}
	return nil
}

func joinObjectPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// Acquisitions lists the series names under /acquisition.
func (s *Session) Acquisitions() ([]string, error) {
	return s.List("/acquisition")
}

// Acquisition opens the named series under /acquisition.
func (s *Session) Acquisition(name string) (*Series, error) {
	return s.openSeries(joinObjectPath("/acquisition", name))
}

// ProcessingModules lists the module names under /processing.
func (s *Session) ProcessingModules() ([]string, error) {
	return s.List("/processing")
}

// Processing opens a series stored under /processing/<module>.
func (s *Session) Processing(module, name string) (*Series, error) {
	return s.openSeries("/processing/" + module + "/" + name)
}

// Trials returns the trial interval table at /intervals/trials.
func (s *Session) Trials() (*Table, error) {
	return s.Table(trialsPath)
}

// Electrodes returns the electrode table at
// /general/extracellular_ephys/electrodes.
func (s *Session) Electrodes() (*Table, error) {
	return s.Table(electrodesPath)
}
