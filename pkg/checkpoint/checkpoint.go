package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/models"
)

const currentVersion = 1

// ErrExists is returned by Open when a previous run was interrupted and the
// caller asked neither to resume nor to restart
var ErrExists = errors.New("checkpoint exists - use --resume to continue or --force-restart to start fresh")

// Checkpoint is the persisted state of a probe run
type Checkpoint struct {
	Name       string            `json:"name"`
	RunID      string            `json:"run_id"`
	Checks     int               `json:"checks"`
	CodeLength int               `json:"code_length"`
	Stats      models.Stats      `json:"stats"`
	Findings   map[string]string `json:"findings"` // code -> file
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Version    int               `json:"version"`
}

// Remaining is the number of attempts still to run
func (c *Checkpoint) Remaining() int {
	return c.Stats.Remaining(c.Checks)
}

// Manager handles checkpoint operations for one named run
type Manager struct {
	name           string
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a manager storing checkpoints under the XDG data home
func NewManager(name string) (*Manager, error) {
	return NewManagerInDir(filepath.Join(xdg.DataHome, "shotprobe", "checkpoints"), name)
}

// NewManagerInDir creates a manager storing checkpoints under dir
func NewManagerInDir(dir, name string) (*Manager, error) {
	if name == "" {
		return nil, fmt.Errorf("checkpoint name cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &Manager{
		name:           name,
		checkpointPath: filepath.Join(dir, name+".checkpoint.json"),
		logger:         logger.GetLogger().WithField("checkpoint", name),
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create writes a fresh checkpoint for a new run
func (m *Manager) Create(runID string, checks, codeLength int) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Name:       m.name,
		RunID:      runID,
		Checks:     checks,
		CodeLength: codeLength,
		Stats:      models.Stats{StartedAt: now},
		Findings:   make(map[string]string),
		CreatedAt:  now,
		Version:    currentVersion,
	}

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"run_id": runID,
		"path":   m.checkpointPath,
	})
	return cp, nil
}

// Load reads the checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version > currentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", cp.Version, currentVersion)
	}
	if cp.Findings == nil {
		cp.Findings = make(map[string]string)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"run_id":   cp.RunID,
		"attempts": cp.Stats.Attempts,
		"checks":   cp.Checks,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"attempts": cp.Stats.Attempts,
		"findings": len(cp.Findings),
	})
	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// Info returns a summary of the stored checkpoint, or nil if there is none
func (m *Manager) Info() (map[string]interface{}, error) {
	cp, err := m.Load()
	if err != nil || cp == nil {
		return nil, err
	}
	return map[string]interface{}{
		"run_id":     cp.RunID,
		"attempts":   cp.Stats.Attempts,
		"checks":     cp.Checks,
		"downloads":  cp.Stats.SuccessfulDownloads,
		"created_at": cp.CreatedAt,
		"updated_at": cp.UpdatedAt,
		"age":        time.Since(cp.UpdatedAt),
	}, nil
}

// Open decides which checkpoint a new run starts from. With resume set an
// existing checkpoint is loaded; with forceRestart it is discarded. When one
// exists and neither is set, ErrExists is returned. The bool result reports
// whether the run is a resumption.
func (m *Manager) Open(runID string, checks, codeLength int, resume, forceRestart bool) (*Checkpoint, bool, error) {
	if m.Exists() {
		switch {
		case forceRestart:
			if err := m.Delete(); err != nil {
				return nil, false, err
			}
		case resume:
			cp, err := m.Load()
			if err != nil {
				return nil, false, err
			}
			if cp != nil {
				return cp, true, nil
			}
		default:
			return nil, false, ErrExists
		}
	}

	cp, err := m.Create(runID, checks, codeLength)
	if err != nil {
		return nil, false, err
	}
	return cp, false, nil
}
