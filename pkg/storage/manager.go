package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"shotprobe/pkg/models"
)

const (
	imageExt   = ".jpg"
	tempSuffix = ".tmp"
	bufferSize = 32 * 1024
)

// Manager owns the downloads directory. Files only appear under their final
// name once fully written.
type Manager struct {
	outputDir string
	stored    map[string]bool
	mu        sync.RWMutex
}

// NewManager creates the output directory if needed and indexes the images
// already in it
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manager{
		outputDir: outputDir,
		stored:    make(map[string]bool),
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return m, nil
}

func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		switch {
		case strings.HasSuffix(name, imageExt):
			m.stored[strings.TrimSuffix(name, imageExt)] = true
		case strings.HasSuffix(name, tempSuffix):
			// leftovers of an interrupted run are never complete images
			_ = os.Remove(filepath.Join(m.outputDir, name))
		}
	}
	return nil
}

// PathFor returns the destination path for a code
func (m *Manager) PathFor(code string) string {
	return filepath.Join(m.outputDir, code+imageExt)
}

// MarkStored records that an image for code is on disk
func (m *Manager) MarkStored(code string) {
	m.mu.Lock()
	m.stored[code] = true
	m.mu.Unlock()
}

// OnEvent indexes images written by the prober
func (m *Manager) OnEvent(e models.Event) {
	if e.State.Downloaded() {
		m.MarkStored(e.Code)
	}
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Count returns the number of stored images
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stored)
}

// WriteAtomic streams r into path+".tmp" and renames it to path once the
// copy and close succeed. On any error the temporary file is removed and
// path is left untouched.
func WriteAtomic(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := path + tempSuffix
	out, err := os.Create(tempFile)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	w := bufio.NewWriterSize(out, bufferSize)
	n, err := io.CopyBuffer(w, r, make([]byte, bufferSize))
	if err == nil {
		err = w.Flush()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to write data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return n, nil
}
