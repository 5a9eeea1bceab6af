// Package ledger implements the durable record of every post attempt and the
// admission gates (monthly quota, duplicate guard) in front of the posting
// platform.
//
// This file contains the local fallback store: a whole-file JSON mapping from
// record id to record. The entire mapping is rewritten on each change. A
// missing or corrupt file is treated as an empty ledger, never a fatal error;
// the remote store is the source of truth when reachable and overwrites this
// file on load.
package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-banger-backend/internal/domain"
)

// FileStore persists the ledger mapping as a single JSON document.
type FileStore struct {
	Path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the full mapping. A missing file yields an empty map; a file
// that cannot be parsed is logged and also yields an empty map so a corrupt
// store never takes the service down.
func (s *FileStore) Load() map[string]domain.LedgerRecord {
	records := make(map[string]domain.LedgerRecord)

	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.Path).Msg("ledger file unreadable, starting empty")
		}
		return records
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		log.Warn().Err(err).Str("path", s.Path).Msg("ledger file corrupt, starting empty")
		return make(map[string]domain.LedgerRecord)
	}
	return records
}

// Save rewrites the full mapping atomically (temp file + rename) so a crash
// mid-write cannot corrupt the previous snapshot.
func (s *FileStore) Save(records map[string]domain.LedgerRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}
