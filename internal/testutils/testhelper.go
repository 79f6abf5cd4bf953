package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger

	// Hook records every entry written through Logger.
	Hook *test.Hook
}

// NewTestHelper creates a test helper whose logger output is captured by Hook.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	hook := test.NewLocal(logger)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// EntriesWithMessage returns captured entries whose message equals msg.
func (h *TestHelper) EntriesWithMessage(msg string) []logrus.Entry {
	var out []logrus.Entry
	for _, e := range h.Hook.AllEntries() {
		if e.Message == msg {
			out = append(out, *e)
		}
	}
	return out
}

// ProjectRoot walks up from the working directory to the directory holding go.mod.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	projectRoot := wd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			return projectRoot, nil
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			return "", fmt.Errorf("could not find project root (go.mod not found)")
		}
		projectRoot = parent
	}
}

// LoadFixture reads a file relative to the project root.
func LoadFixture(relPath string) ([]byte, error) {
	root, err := ProjectRoot()
	if err != nil {
		return nil, err
	}

	fullPath := filepath.Join(root, relPath)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fullPath, err)
	}
	return data, nil
}
