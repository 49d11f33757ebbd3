package glidein

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bbockelm/golang-glidein/logging"
)

// Files a web submission keeps in its workspace.
const (
	ExecutableFile = "userexecutable"
	LogFile        = "test.log"
	OutputFile     = "test.out"
	ErrorFile      = "test.err"
)

// retiredMarker flags a retired workspace when no ledger is configured.
const retiredMarker = ".retired"

// ErrWorkspaceNotFound is returned for unknown or malformed workspace ids.
var ErrWorkspaceNotFound = errors.New("workspace not found")

var errFreeSpaceUnsupported = errors.New("free space check not supported on this platform")

// Workspace is a per-submission directory.
type Workspace struct {
	ID      string
	Path    string
	Created time.Time
}

// File returns the path of name inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, name)
}

// WorkspaceOptions configures a WorkspaceManager.
type WorkspaceOptions struct {
	// Ledger records workspaces for Lookup and Sweep. Optional.
	Ledger *Ledger
	// MinFreeBytes makes Open fail when the root has less space available. 0 disables.
	MinFreeBytes uint64
	Logger       *logging.Logger
}

// WorkspaceManager allocates, archives and retires workspaces under one root.
// Workspaces are never removed except by Sweep.
type WorkspaceManager struct {
	root    string
	ledger  *Ledger
	minFree uint64
	logger  *logging.Logger
	now     func() time.Time
}

// NewWorkspaceManager creates a manager for workspaces under root. A relative
// root is made absolute against the current directory, so workspace paths
// stay valid whatever directory they are later resolved from.
func NewWorkspaceManager(root string, opts WorkspaceOptions) *WorkspaceManager {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &WorkspaceManager{
		root:    root,
		ledger:  opts.Ledger,
		minFree: opts.MinFreeBytes,
		logger:  opts.Logger,
		now:     time.Now,
	}
}

// Root returns the logs root directory.
func (m *WorkspaceManager) Root() string {
	return m.root
}

// Open creates a new workspace named by a random UUID. Only a pre-existing
// root directory is tolerated; any other creation failure is an *AllocationError.
func (m *WorkspaceManager) Open(ctx context.Context) (*Workspace, error) {
	if err := os.Mkdir(m.root, 0o755); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return nil, &AllocationError{Path: m.root, Err: err}
		}
		if info, serr := os.Stat(m.root); serr != nil || !info.IsDir() {
			return nil, &AllocationError{Path: m.root, Err: fmt.Errorf("not a directory")}
		}
	}

	if m.minFree > 0 {
		free, err := freeBytes(m.root)
		switch {
		case errors.Is(err, errFreeSpaceUnsupported):
			m.logger.Debug(logging.DestinationWorkspace, "skipping free space check", "root", m.root)
		case err != nil:
			return nil, &AllocationError{Path: m.root, Err: err}
		case free < m.minFree:
			return nil, &AllocationError{Path: m.root, Err: fmt.Errorf("%d bytes free, %d required", free, m.minFree)}
		}
	}

	ws := &Workspace{
		ID:      uuid.New().String(),
		Created: m.now(),
	}
	ws.Path = filepath.Join(m.root, ws.ID)
	if err := os.Mkdir(ws.Path, 0o755); err != nil {
		return nil, &AllocationError{Path: ws.Path, Err: err}
	}

	if m.ledger != nil {
		if err := m.ledger.Record(ctx, ws); err != nil {
			_ = os.RemoveAll(ws.Path)
			return nil, &AllocationError{Path: ws.Path, Err: err}
		}
	}

	m.logger.Info(logging.DestinationWorkspace, "opened workspace", "id", ws.ID, "path", ws.Path)
	return ws, nil
}

// Lookup returns the existing workspace with the given id.
func (m *WorkspaceManager) Lookup(ctx context.Context, id string) (*Workspace, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrWorkspaceNotFound
	}
	// Canonical form, so "{...}" and upper-case spellings map to the same directory
	id = parsed.String()

	ws := &Workspace{ID: id, Path: filepath.Join(m.root, id)}
	info, err := os.Stat(ws.Path)
	if err != nil || !info.IsDir() {
		return nil, ErrWorkspaceNotFound
	}
	ws.Created = info.ModTime()

	if m.ledger != nil {
		entry, err := m.ledger.Lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		ws.Created = entry.Created
	}
	return ws, nil
}

// archivePrefix starts the name of every log archive.
const archivePrefix = "logdownloads_"

func isArchive(name string) bool {
	return strings.HasPrefix(name, archivePrefix) && strings.HasSuffix(name, ".zip")
}

// Archive zips every file in the workspace, except earlier archives and
// bookkeeping files, into a new logdownloads_<timestamp>_<random>.zip inside
// the workspace. Each call gets its own file; the caller removes it when done.
func (m *WorkspaceManager) Archive(ws *Workspace) (string, error) {
	pattern := archivePrefix + m.now().Format("2006-01-02_15-04-05") + "_*.zip"
	f, err := os.CreateTemp(ws.Path, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	archivePath := f.Name()
	zw := zip.NewWriter(f)

	walkErr := filepath.WalkDir(ws.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isArchive(d.Name()) || d.Name() == retiredMarker {
			return nil
		}
		rel, err := filepath.Rel(ws.Path, path)
		if err != nil {
			return err
		}
		return addZipFile(zw, path, filepath.ToSlash(rel))
	})

	closeErr := zw.Close()
	if err := f.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if walkErr != nil || closeErr != nil {
		_ = os.Remove(archivePath)
		return "", fmt.Errorf("failed to archive workspace %s: %w", ws.ID, errors.Join(walkErr, closeErr))
	}

	m.logger.Info(logging.DestinationWorkspace, "archived workspace", "id", ws.ID, "archive", archivePath)
	return archivePath, nil
}

func addZipFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// Retire marks a workspace as done. Its files stay until a Sweep.
func (m *WorkspaceManager) Retire(ctx context.Context, ws *Workspace) error {
	now := m.now()
	if m.ledger != nil {
		if err := m.ledger.Retire(ctx, ws.ID, now); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(ws.File(retiredMarker), []byte(now.UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to retire workspace %s: %w", ws.ID, err)
		}
		// The marker's mtime is the retirement time
		_ = os.Chtimes(ws.File(retiredMarker), now, now)
	}
	m.logger.Info(logging.DestinationWorkspace, "retired workspace", "id", ws.ID)
	return nil
}

// Sweep removes workspaces retired more than ttl ago and returns how many were removed.
func (m *WorkspaceManager) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := m.now().Add(-ttl)
	if m.ledger != nil {
		return m.sweepLedger(ctx, cutoff)
	}
	return m.sweepMarkers(cutoff)
}

func (m *WorkspaceManager) sweepLedger(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := m.ledger.RetiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if err := m.removeWorkspace(entry.ID); err != nil {
			return removed, err
		}
		if err := m.ledger.Delete(ctx, entry.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (m *WorkspaceManager) sweepMarkers(cutoff time.Time) (int, error) {
	dirents, err := os.ReadDir(m.root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to scan workspace root: %w", err)
	}
	removed := 0
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(m.root, d.Name(), retiredMarker))
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := m.removeWorkspace(d.Name()); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (m *WorkspaceManager) removeWorkspace(id string) error {
	if _, err := uuid.Parse(id); err != nil || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("refusing to remove %q: not a workspace id", id)
	}
	if err := os.RemoveAll(filepath.Join(m.root, id)); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", id, err)
	}
	m.logger.Info(logging.DestinationWorkspace, "swept workspace", "id", id)
	return nil
}
