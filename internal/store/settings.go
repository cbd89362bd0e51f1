package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rsharma/biopaper/internal/model"
)

// SetSetting upserts a key-value pair in the settings table.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetSetting returns the value for a settings key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func generatorSettingsKey(userID int64) string {
	return fmt.Sprintf("generator_settings:%d", userID)
}

// SaveGeneratorSettings persists a user's generator settings draft.
func (s *Store) SaveGeneratorSettings(userID int64, st model.GeneratorSettings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode generator settings: %w", err)
	}
	return s.SetSetting(generatorSettingsKey(userID), string(data))
}

// GetGeneratorSettings loads a user's generator settings draft. Returns
// nil when the user has never saved one.
func (s *Store) GetGeneratorSettings(userID int64) (*model.GeneratorSettings, error) {
	raw, err := s.GetSetting(generatorSettingsKey(userID))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var st model.GeneratorSettings
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode generator settings: %w", err)
	}
	return &st, nil
}

// GetImportedFileHash returns the recorded hash for an imported questions
// file, or empty string if the file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of an imported questions file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?`,
		path, hash, hash,
	)
	return err
}
