package accesslog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	MaxLogSize        = 10 * 1024 * 1024 // 10MB
	MaxLogFiles       = 5
	LogFilePermission = 0600
	LogDirPermission  = 0700
)

// AccessType classifies a sync endpoint hit for the per-user access log,
// independent of any permission-file evaluation outcome.
type AccessType string

const (
	AccessTypeRead  AccessType = "read"
	AccessTypeWrite AccessType = "write"
	AccessTypeDeny  AccessType = "deny"
)

type AccessLogEntry struct {
	Timestamp    time.Time  `json:"timestamp"`
	Path         string     `json:"path"`
	AccessType   AccessType `json:"access_type"`
	User         string     `json:"user"`
	IP           string     `json:"ip"`
	UserAgent    string     `json:"user_agent"`
	Method       string     `json:"method"`
	StatusCode   int        `json:"status_code"`
	Allowed      bool       `json:"allowed"`
	DeniedReason string     `json:"denied_reason,omitempty"`
}

// MarshalJSON formats the timestamp for on-disk readability.
func (e AccessLogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Timestamp    string     `json:"timestamp"`
		Path         string     `json:"path"`
		AccessType   AccessType `json:"access_type"`
		User         string     `json:"user"`
		IP           string     `json:"ip"`
		UserAgent    string     `json:"user_agent"`
		Method       string     `json:"method"`
		StatusCode   int        `json:"status_code"`
		Allowed      bool       `json:"allowed"`
		DeniedReason string     `json:"denied_reason,omitempty"`
	}{
		Timestamp:    e.Timestamp.Format("2006-01-02 15:04:05.000 UTC"),
		Path:         e.Path,
		AccessType:   e.AccessType,
		User:         e.User,
		IP:           e.IP,
		UserAgent:    e.UserAgent,
		Method:       e.Method,
		StatusCode:   e.StatusCode,
		Allowed:      e.Allowed,
		DeniedReason: e.DeniedReason,
	})
}

func (e *AccessLogEntry) UnmarshalJSON(data []byte) error {
	aux := &struct {
		Timestamp    string     `json:"timestamp"`
		Path         string     `json:"path"`
		AccessType   AccessType `json:"access_type"`
		User         string     `json:"user"`
		IP           string     `json:"ip"`
		UserAgent    string     `json:"user_agent"`
		Method       string     `json:"method"`
		StatusCode   int        `json:"status_code"`
		Allowed      bool       `json:"allowed"`
		DeniedReason string     `json:"denied_reason,omitempty"`
	}{}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	t, err := time.Parse("2006-01-02 15:04:05.000 MST", aux.Timestamp)
	if err != nil {
		t, err = time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse access log timestamp: %w", err)
		}
	}

	e.Timestamp = t
	e.Path = aux.Path
	e.AccessType = aux.AccessType
	e.User = aux.User
	e.IP = aux.IP
	e.UserAgent = aux.UserAgent
	e.Method = aux.Method
	e.StatusCode = aux.StatusCode
	e.Allowed = aux.Allowed
	e.DeniedReason = aux.DeniedReason

	return nil
}

// AccessLogger writes one append-only, size-rotated JSONL file per user under
// baseDir, recording every sync endpoint hit regardless of outcome.
type AccessLogger struct {
	baseDir     string
	writers     map[string]*userLogWriter
	writerMutex sync.RWMutex
	logger      *slog.Logger
}

func New(baseDir string, logger *slog.Logger) (*AccessLogger, error) {
	if err := os.MkdirAll(baseDir, LogDirPermission); err != nil {
		return nil, fmt.Errorf("create access log dir: %w", err)
	}

	return &AccessLogger{
		baseDir: baseDir,
		writers: make(map[string]*userLogWriter),
		logger:  logger.With("component", "access_logger"),
	}, nil
}

func (al *AccessLogger) LogAccess(ctx *gin.Context, path string, accessType AccessType, allowed bool, deniedReason string) {
	user := ctx.GetString("user")
	if user == "" {
		user = "anonymous"
	}

	entry := AccessLogEntry{
		Timestamp:    time.Now().UTC(),
		Path:         path,
		AccessType:   accessType,
		User:         user,
		IP:           ctx.ClientIP(),
		UserAgent:    ctx.Request.UserAgent(),
		Method:       ctx.Request.Method,
		StatusCode:   ctx.Writer.Status(),
		Allowed:      allowed,
		DeniedReason: deniedReason,
	}

	if err := al.writeLog(user, entry); err != nil {
		al.logger.Error("write access log", "user", user, "error", err, "path", path)
	}
}

func (al *AccessLogger) writeLog(user string, entry AccessLogEntry) error {
	al.writerMutex.Lock()
	writer, exists := al.writers[user]
	if !exists {
		var err error
		writer, err = al.createUserWriter(user)
		if err != nil {
			al.writerMutex.Unlock()
			return err
		}
		al.writers[user] = writer
	}
	al.writerMutex.Unlock()

	return writer.writeEntry(entry)
}

func (al *AccessLogger) createUserWriter(user string) (*userLogWriter, error) {
	userDir := filepath.Join(al.baseDir, sanitizeUsername(user))
	if err := os.MkdirAll(userDir, LogDirPermission); err != nil {
		return nil, fmt.Errorf("create user log dir: %w", err)
	}

	writer := &userLogWriter{
		user:   user,
		logDir: userDir,
	}

	if err := writer.openLogFile(); err != nil {
		return nil, err
	}

	return writer, nil
}

func (al *AccessLogger) Close() error {
	al.writerMutex.Lock()
	defer al.writerMutex.Unlock()

	for _, writer := range al.writers {
		if writer.file != nil {
			writer.file.Close()
		}
	}

	return nil
}

func (al *AccessLogger) GetUserLogs(user string, limit int) ([]AccessLogEntry, error) {
	userDir := filepath.Join(al.baseDir, sanitizeUsername(user))

	files, err := os.ReadDir(userDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []AccessLogEntry{}, nil
		}
		return nil, err
	}

	var entries []AccessLogEntry
	for i := len(files) - 1; i >= 0 && len(entries) < limit; i-- {
		if files[i].IsDir() || filepath.Ext(files[i].Name()) != ".log" {
			continue
		}

		logPath := filepath.Join(userDir, files[i].Name())
		fileEntries, err := al.readLogFile(logPath, limit-len(entries))
		if err != nil {
			al.logger.Warn("read access log file", "file", logPath, "error", err)
			continue
		}

		entries = append(fileEntries, entries...)
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	return entries, nil
}

func (al *AccessLogger) readLogFile(path string, limit int) ([]AccessLogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []AccessLogEntry
	decoder := json.NewDecoder(file)

	for {
		var entry AccessLogEntry
		if err := decoder.Decode(&entry); err != nil {
			if err == io.EOF {
				break
			}
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) > limit {
		return entries[len(entries)-limit:], nil
	}

	return entries, nil
}

func sanitizeUsername(user string) string {
	result := make([]byte, 0, len(user))
	for i := 0; i < len(user); i++ {
		c := user[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '@' || c == '.' || c == '-' || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}
