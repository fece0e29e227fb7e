// Package registry persists file fingerprints between ingestion runs.
//
// A Registry is a plain value: the ingestion controller loads it at the start of
// a run, records fingerprints as files are processed and saves it once at the
// end. Nothing in this package keeps global state.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dshills/docrag-mcp/pkg/types"
)

// FileName is the registry file inside the processed-files directory
const FileName = "file_registry.json"

// FallbackHashPrefix marks a clock-derived surrogate hash
const FallbackHashPrefix = "timestamp-"

// Registry maps source file path to its last processed fingerprint
type Registry map[string]types.FileFingerprint

// hashFile and now are replaced in tests
var (
	hashFile = sha256File
	now      = time.Now
)

// New returns an empty registry
func New() Registry {
	return Registry{}
}

// Path returns the registry file location for dir
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the registry stored in dir. A missing file yields an empty
// registry; an unreadable or corrupt file is logged and also yields an empty
// registry so the run degrades to full reprocessing.
func Load(dir string, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(Path(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return New()
	}
	if err != nil {
		logger.Warn("registry unreadable, starting empty", "path", Path(dir), "error", err)
		return New()
	}

	reg := New()
	if err := json.Unmarshal(data, &reg); err != nil {
		logger.Warn("registry corrupt, starting empty", "path", Path(dir), "error", err)
		return New()
	}
	if reg == nil {
		return New()
	}
	return reg
}

// Save overwrites the registry file in dir, creating dir if needed
func Save(dir string, reg Registry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	if reg == nil {
		reg = New()
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	if err := os.Rename(tmpName, Path(dir)); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Delete removes the registry file from dir. A missing file is not an error.
func Delete(dir string) error {
	err := os.Remove(Path(dir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove registry: %w", err)
	}
	return nil
}

// Fingerprint stats and hashes path. A hashing failure does not fail the call:
// the hash falls back to a clock-derived surrogate and Fallback is set. Only a
// failed stat is returned as an error.
func Fingerprint(path string, logger *slog.Logger) (types.FileFingerprint, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		return types.FileFingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}

	fp := types.FileFingerprint{
		Path:    path,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}

	hash, err := hashFile(path)
	if err != nil {
		fp.Hash = fmt.Sprintf("%s%d", FallbackHashPrefix, now().Unix())
		fp.Fallback = true
		logger.Warn("fingerprint hash fallback", "path", path, "surrogate", fp.Hash, "error", err)
		return fp, nil
	}
	fp.Hash = hash
	return fp, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NeedsReprocessing reports whether current differs from the stored
// fingerprint for the same path, or no fingerprint is stored.
func (r Registry) NeedsReprocessing(current types.FileFingerprint) bool {
	stored, ok := r[current.Path]
	if !ok {
		return true
	}
	return !stored.Matches(current)
}

// Record stores fp under its path
func (r Registry) Record(fp types.FileFingerprint) {
	r[fp.Path] = fp
}

// Remove drops path from the registry
func (r Registry) Remove(path string) {
	delete(r, path)
}

// Paths returns the registered paths in lexical order
func (r Registry) Paths() []string {
	paths := make([]string, 0, len(r))
	for p := range r {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Missing returns registered paths that are not in present, in lexical order
func (r Registry) Missing(present map[string]struct{}) []string {
	var missing []string
	for _, p := range r.Paths() {
		if _, ok := present[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
