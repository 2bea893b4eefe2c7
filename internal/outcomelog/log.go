package outcomelog

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// Log is the append-only record of moderation outcomes, one line per
// terminal outcome: "<Outcome> - <post title> (<post URL>)".
type Log struct {
	path   string
	file   *os.File
	logger *logrus.Logger
	mu     sync.Mutex
}

// lineFormatter writes the bare message, one entry per line
type lineFormatter struct{}

func (lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(entry.Message + "\n"), nil
}

// Open opens the log at path for appending, creating it and its directory
// when missing.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome log %s: %w", path, err)
	}

	logger := logrus.New()
	logger.SetOutput(file)
	logger.SetFormatter(lineFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	return &Log{path: path, file: file, logger: logger}, nil
}

// Path returns the location of the log file
func (l *Log) Path() string {
	return l.path
}

// Record appends the outcome for post. Outcomes without a log label are
// ignored.
func (l *Log) Record(outcome models.Outcome, post models.Post) {
	label := outcome.LogLabel()
	if label == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Infof("%s - %s (%s)", label, post.Title, post.URL())
}

// Snapshot returns the current content of the log
func (l *Log) Snapshot() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read outcome log: %w", err)
	}
	return data, nil
}

// Trim cuts the log down to its first keep lines
func (l *Log) Trim(keep int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read outcome log: %w", err)
	}

	var kept bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for i := 0; i < keep && scanner.Scan(); i++ {
		kept.Write(scanner.Bytes())
		kept.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan outcome log: %w", err)
	}

	// the append handle keeps writing at the new end of file
	if err := os.WriteFile(l.path, kept.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to trim outcome log: %w", err)
	}

	logrus.Infof("Trimmed outcome log %s to %d lines", l.path, keep)
	return nil
}

// Close closes the underlying file
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Tally counts the entries of a log snapshot by label. Lines that are not
// outcome entries are skipped.
func Tally(data []byte) map[string]int {
	labels := map[string]bool{}
	for _, outcome := range []models.Outcome{models.OutcomeLinkFound, models.OutcomeRemoved, models.OutcomeReapproved} {
		labels[outcome.LogLabel()] = true
	}

	counts := map[string]int{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		label, _, ok := strings.Cut(scanner.Text(), " - ")
		if ok && labels[label] {
			counts[label]++
		}
	}
	return counts
}
