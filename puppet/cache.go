package puppet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CacheFile is the movement cache written inside the config directory.
const CacheFile = "movements.json"

type movementCache struct {
	Saved     time.Time  `json:"saved"`
	Movements []Movement `json:"movements"`
}

// SaveMovements writes the last movement list pushed by the server so the
// console can start with it while the server is unreachable.
func SaveMovements(path string, movements []Movement) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(movementCache{Saved: time.Now(), Movements: movements}, "", "  ")
	if err != nil {
		return err
	}
	// Rename keeps readers from seeing a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadMovementsFile reads a cache written by SaveMovements. A missing file is
// not an error and returns no movements.
func LoadMovementsFile(path string) ([]Movement, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, err
	}
	var c movementCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, time.Time{}, fmt.Errorf("movement cache %s: %w", path, err)
	}
	return c.Movements, c.Saved, nil
}
