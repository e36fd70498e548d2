package atl

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/atl/pkg/impl"
)

// FileState is the lifecycle state of a standalone file.
type FileState int

const (
	FileStateNone FileState = iota
	FileStateLoading
	FileStatePlaying
	FileStateStopping
)

// String returns the human-readable name of the state.
func (s FileState) String() string {
	switch s {
	case FileStateNone:
		return "none"
	case FileStateLoading:
		return "loading"
	case FileStatePlaying:
		return "playing"
	case FileStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// FileInfo describes the standalone file a notification refers to.
type FileInfo struct {
	File      string    `json:"file"`
	Localized bool      `json:"localized"`
	State     FileState `json:"state"`
}

// standaloneFile is a file played directly on an object, outside any
// trigger's authored content.
type standaloneFile struct {
	ref       impl.FileRef
	object    *Object
	name      string
	localized bool
	triggerID ControlID
	state     FileState
	backend   impl.StandaloneFile

	// Request context of the PlayFile call, echoed in the file's
	// notifications.
	flags         RequestFlags
	owner         any
	userData      any
	userDataOwner any
}

func (f *standaloneFile) info() *FileInfo {
	return &FileInfo{File: f.name, Localized: f.localized, State: f.state}
}

// fileManager pools standalone files.
type fileManager struct {
	pool    *pool[standaloneFile]
	backend impl.Impl
	log     *slog.Logger
}

func newFileManager(cfg PoolConfig, log *slog.Logger) *fileManager {
	return &fileManager{pool: newPool[standaloneFile](cfg), log: log}
}

func (m *fileManager) construct(name string, localized bool, trigger impl.Trigger) (*standaloneFile, error) {
	f := &standaloneFile{name: name, localized: localized}
	h, err := m.pool.insert(f)
	if err != nil {
		return nil, fmt.Errorf("construct file %q: %w", name, err)
	}
	f.ref = impl.FileRef(h)
	bf, err := m.backend.ConstructStandaloneFile(f.ref, name, localized, trigger)
	if err != nil {
		m.pool.remove(h)
		return nil, fmt.Errorf("construct file %q: backend: %w", name, err)
	}
	f.backend = bf
	return f, nil
}

func (m *fileManager) destruct(f *standaloneFile) {
	if _, ok := m.pool.remove(handle(f.ref)); !ok {
		return
	}
	if f.backend != nil {
		m.backend.DestructStandaloneFile(f.backend)
		f.backend = nil
	}
	f.state = FileStateNone
}

func (m *fileManager) lookup(ref impl.FileRef) (*standaloneFile, bool) {
	return m.pool.get(handle(ref))
}

func (m *fileManager) releaseAll() int {
	var all []*standaloneFile
	m.pool.each(func(_ handle, f *standaloneFile) { all = append(all, f) })
	for _, f := range all {
		m.destruct(f)
	}
	if len(all) > 0 {
		m.log.Debug("released standalone files", "count", len(all))
	}
	return len(all)
}

func (m *fileManager) len() int { return m.pool.len() }
