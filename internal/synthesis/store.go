package synthesis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/vanguardlabs/frontdesk/internal/session"
)

const assetExt = ".mp3"

// ContentKey derives the deterministic fingerprint for a synthesized asset
// from normalized text, the voice identity, and the language. The same input
// always yields the same key.
func ContentKey(text, voiceID string, lang session.Language) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
	sum := sha256.Sum256([]byte(normalized + "|" + voiceID + "|" + string(lang)))
	return hex.EncodeToString(sum[:16])
}

// StorageKey is the file name under which an asset is stored and served.
func StorageKey(contentKey string) string {
	return contentKey + assetExt
}

// AssetURL builds the externally fetchable address for a storage key. URLs
// are only ever built here, from the configured base address; nothing
// rewrites them afterwards.
func AssetURL(baseAddress, storageKey string) string {
	return strings.TrimRight(baseAddress, "/") + "/audio/" + url.PathEscape(storageKey)
}

// ParseAssetURL recovers the storage key from an asset URL built by AssetURL.
func ParseAssetURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse asset url: %w", err)
	}
	const prefix = "/audio/"
	i := strings.LastIndex(u.Path, prefix)
	if i < 0 {
		return "", fmt.Errorf("asset url %q has no audio path", raw)
	}
	key, err := url.PathUnescape(u.Path[i+len(prefix):])
	if err != nil {
		return "", fmt.Errorf("unescape storage key: %w", err)
	}
	if key == "" {
		return "", fmt.Errorf("asset url %q has empty storage key", raw)
	}
	return key, nil
}

// ValidStorageKey guards the audio-serving handler against path traversal:
// storage keys are hex fingerprints plus the asset extension, nothing else.
func ValidStorageKey(key string) bool {
	if !strings.HasSuffix(key, assetExt) {
		return false
	}
	stem := strings.TrimSuffix(key, assetExt)
	if stem == "" {
		return false
	}
	for i := 0; i < len(stem); i++ {
		c := stem[i]
		if c >= '0' && c <= '9' || c >= 'a' && c <= 'f' {
			continue
		}
		return false
	}
	return true
}

// Store keeps synthesized audio files in a local cache directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "audio_cache"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Put(storageKey string, data []byte) error {
	// Write-then-rename so a concurrent fetch never sees a half-written file.
	tmp, err := os.CreateTemp(s.dir, "synth-*")
	if err != nil {
		return fmt.Errorf("stage audio asset: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write audio asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close audio asset: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(storageKey)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish audio asset: %w", err)
	}
	return nil
}

func (s *Store) Has(storageKey string) bool {
	info, err := os.Stat(s.Path(storageKey))
	return err == nil && !info.IsDir()
}

func (s *Store) Remove(storageKey string) error {
	err := os.Remove(s.Path(storageKey))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the on-disk location of a storage key. Callers must validate
// the key with ValidStorageKey before serving external requests.
func (s *Store) Path(storageKey string) string {
	return filepath.Join(s.dir, storageKey)
}
