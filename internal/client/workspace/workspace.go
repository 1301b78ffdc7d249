package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/opensyncbox/syncbox/internal/utils"
)

const (
	logsDir          = "logs"
	datasitesDir     = "datasites"
	publicDir        = "public"
	metadataDir      = ".data"
	pluginsDir       = "plugins"
	syncPluginDir    = "sync"
	localStateDbFile = "local_state.db"
	changeLogFile    = "ticks.jsonl"
	pathSep          = string(filepath.Separator)
	lockFile         = "syncbox.lock"
)

var ErrWorkspaceLocked = errors.New("workspace locked by another process")

// Workspace is the client-side filesystem layout rooted at a single
// directory: synchronized content under datasites/, durable sync state under
// plugins/sync/, the change log and lock file under .data/, and an advisory lock preventing two
// Manager processes from running against the same root concurrently.
type Workspace struct {
	Owner         string
	Root          string
	LogsDir       string
	DatasitesDir  string
	MetadataDir   string
	UserDir       string
	UserPublicDir string
	LocalStateDb  string
	ChangeLogPath string

	flock *flock.Flock
}

func NewWorkspace(rootDir string, user string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", rootDir, err)
	}

	lockFilePath := filepath.Join(root, metadataDir, lockFile)

	return &Workspace{
		Owner:         user,
		Root:          root,
		LogsDir:       filepath.Join(root, logsDir),
		DatasitesDir:  filepath.Join(root, datasitesDir),
		MetadataDir:   filepath.Join(root, metadataDir),
		UserDir:       filepath.Join(root, datasitesDir, user),
		UserPublicDir: filepath.Join(root, datasitesDir, user, publicDir),
		LocalStateDb:  filepath.Join(root, pluginsDir, syncPluginDir, localStateDbFile),
		ChangeLogPath: filepath.Join(root, metadataDir, changeLogFile),
		flock:         flock.New(lockFilePath),
	}, nil
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup locks the workspace and creates the directories the sync engine
// needs before the Manager's first tick: the user's public datasite dir and
// the plugins/sync directory that will hold local_state.db. The change log's
// .data directory is created by Lock.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	dirs := []string{
		w.UserPublicDir,
		filepath.Dir(w.LocalStateDb),
	}
	for _, dir := range dirs {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := setFolderIcon(w.Root); err != nil {
		slog.Warn("set folder icon", "error", err)
	}

	return nil
}

func (w *Workspace) DatasiteAbsPath(path string) string {
	return filepath.Join(w.DatasitesDir, path)
}

func (w *Workspace) DatasiteRelPath(path string) (string, error) {
	relPath, err := filepath.Rel(w.DatasitesDir, path)
	if err != nil {
		return "", err
	}
	return NormPath(relPath), nil
}

func (w *Workspace) PathOwner(path string) string {
	p, _ := w.DatasiteRelPath(path)
	parts := strings.Split(p, pathSep)
	if len(parts) < 1 {
		return ""
	}
	return parts[0]
}

func NormPath(path string) string {
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	return path
}
