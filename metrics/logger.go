package metrics

import (
	"fmt"
	"log"
	"os"
	"path"
	"sort"
	"strings"
	"time"
)

type Logger interface {
	Log(info *MetricsInfo)
}

type StdoutLogger struct{}

func NewStdoutLogger() *StdoutLogger {
	return &StdoutLogger{}
}

func (l *StdoutLogger) Log(info *MetricsInfo) {
	infoStr, err := info.ToJSON()
	if err == nil {
		log.Print(infoStr)
	} else {
		log.Printf("StdoutLogger: error: %v", err)
	}
}

const defaultQueueSize = 2000
const defaultMaxLogFileSize = 256 * 1024 * 1024
const defaultMaxLogFiles = 10

// FileLogger appends job records as JSON lines to a log file, rotating
// by size to timestamped files and keeping a bounded number of rotated
// files. Writes are decoupled from requests through a queue; a full
// queue drops records rather than blocking request handling.
type FileLogger struct {
	queue          chan *MetricsInfo
	LogDir         string
	MaxLogFileSize int64
	MaxLogFiles    int
	Verbose        bool
}

func NewFileLogger(logDir string, maxLogFileSize int64, maxLogFiles int, verbose bool) *FileLogger {
	if maxLogFileSize <= 0 {
		maxLogFileSize = defaultMaxLogFileSize
	}
	if maxLogFiles <= 0 {
		maxLogFiles = defaultMaxLogFiles
	}
	logger := &FileLogger{
		queue:          make(chan *MetricsInfo, defaultQueueSize),
		LogDir:         logDir,
		MaxLogFileSize: maxLogFileSize,
		MaxLogFiles:    maxLogFiles,
		Verbose:        verbose,
	}
	go logger.startLogWriter()
	return logger
}

func (l *FileLogger) Log(info *MetricsInfo) {
	select {
	case l.queue <- info:
	default:
		log.Print("FileLogger: queue full, dropping job record")
	}
}

func (l *FileLogger) startLogWriter() {
	f, err := l.openLogFile()
	if err != nil {
		log.Printf("FileLogger: log open error: %v", err)
	}

	for info := range l.queue {
		infoStr, err := info.ToJSON()
		if err != nil {
			log.Printf("FileLogger: info.ToJSON() error: %v", err)
			continue
		}

		f, err = l.tryRotateLogFile(f)
		if err != nil {
			continue
		}
		if _, err := f.WriteString(infoStr); err != nil {
			log.Printf("FileLogger: write error: %v", err)
			continue
		}
		f.Sync()
	}
}

func (l *FileLogger) currentLogPath() string {
	return path.Join(l.LogDir, "jobs.log")
}

func (l *FileLogger) openLogFile() (*os.File, error) {
	return os.OpenFile(l.currentLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func (l *FileLogger) tryRotateLogFile(currFile *os.File) (*os.File, error) {
	info, err := currFile.Stat()
	if err != nil {
		log.Printf("FileLogger: log rotation error: %v", err)
		return currFile, nil
	}
	if info.Size() < l.MaxLogFileSize {
		return currFile, nil
	}

	currFile.Close()
	rotated := path.Join(l.LogDir, fmt.Sprintf("jobs.log.%s", time.Now().Format("20060102T150405")))
	if err := os.Rename(l.currentLogPath(), rotated); err != nil {
		log.Printf("FileLogger: log rotation error: %v", err)
	} else {
		if l.Verbose {
			log.Printf("FileLogger: log file rotated: %v", rotated)
		}
		l.pruneRotatedFiles()
	}

	f, err := l.openLogFile()
	if err != nil {
		log.Printf("FileLogger: log rotation error: %v", err)
	}
	return f, err
}

// pruneRotatedFiles deletes the oldest rotated files beyond the
// configured limit. The timestamp suffix makes name order age order.
func (l *FileLogger) pruneRotatedFiles() {
	entries, err := os.ReadDir(l.LogDir)
	if err != nil {
		log.Printf("FileLogger: log pruning error: %v", err)
		return
	}
	var rotated []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), "jobs.log.") {
			rotated = append(rotated, e.Name())
		}
	}
	if len(rotated) <= l.MaxLogFiles {
		return
	}
	sort.Strings(rotated)
	for _, name := range rotated[:len(rotated)-l.MaxLogFiles] {
		if err := os.Remove(path.Join(l.LogDir, name)); err != nil {
			log.Printf("FileLogger: log pruning error: %v", err)
		}
	}
}
