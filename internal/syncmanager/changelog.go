package syncmanager

import (
	"path/filepath"

	"github.com/opensyncbox/syncbox/internal/client/workspace"
	"github.com/opensyncbox/syncbox/internal/utils"
)

// ensureChangeLogFolder creates the directory that will hold ws's
// change-log file, mirroring manager.py's setup() creating
// self.change_log_folder before the tick loop starts.
func ensureChangeLogFolder(ws *workspace.Workspace) error {
	return utils.EnsureDir(filepath.Dir(ws.ChangeLogPath))
}
