// Package packages imports extension dictionary tiers from a local
// manifest: content-hash verification, batched resumable writes, and
// re-import when the published hash changes.
package packages

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nsxzhou/flowlingo/internal/dictionary"
	"github.com/nsxzhou/flowlingo/internal/types"
)

const (
	// Entries written per transaction during an import. Progress is
	// checkpointed after each batch so a crash resumes, not restarts.
	batchSize = 300

	manifestTTL = 5 * time.Minute

	// Downloaded package files larger than this are truncated, which
	// the content hash check then rejects.
	maxPackageBytes = 32 << 20
)

// Manifest is the published package index.
type Manifest struct {
	Packages []ManifestPackage `json:"packages"`
}

// ManifestPackage describes one importable tier.
type ManifestPackage struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
	Path  string `json:"path"`
	Hash  string `json:"hash"` // sha256 hex of the package file, optional
}

// PackageStore is the durable backend for imports. Implemented by the
// store.
type PackageStore interface {
	GetDictionaryPackage(level int) (*types.DictionaryPackage, error)
	PutDictionaryPackage(pkg types.DictionaryPackage) error
	PutDictionaryEntries(entries []types.DictionaryEntry) error
	DeleteDictionaryEntriesByLevel(level int) (int64, error)
}

// Invalidator drops memoized dictionary tiers after an import changes
// the entry set. Implemented by the dictionary service.
type Invalidator interface {
	Invalidate()
}

// Importer drives package imports for levels above the core tier.
type Importer struct {
	manifestPath string
	store        PackageStore
	dict         Invalidator
	logger       *zap.Logger
	now          func() time.Time
	httpClient   *http.Client

	mu         sync.Mutex
	manifest   *Manifest
	manifestAt time.Time
}

// NewImporter builds an importer reading the manifest at manifestPath.
// Package paths in the manifest resolve relative to the manifest's
// directory.
func NewImporter(manifestPath string, store PackageStore, dict Invalidator, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		manifestPath: manifestPath,
		store:        store,
		dict:         dict,
		logger:       logger,
		now:          time.Now,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

// EnsureLevel imports every manifest package needed to serve level, in
// ascending level order. The core tier needs no import. Already
// imported packages with an unchanged hash are skipped.
func (im *Importer) EnsureLevel(level int) error {
	target := dictionary.NormalizeLevel(level)
	if target <= dictionary.LevelCore {
		return nil
	}

	manifest, err := im.loadManifest()
	if err != nil {
		return types.WrapError(types.CodeDictionaryNotReady, "failed to load packages manifest", err)
	}

	required := make([]ManifestPackage, 0, len(manifest.Packages))
	for _, p := range manifest.Packages {
		if p.Level > dictionary.LevelCore && p.Level <= target {
			required = append(required, p)
		}
	}
	sort.Slice(required, func(i, j int) bool { return required[i].Level < required[j].Level })

	for _, pkg := range required {
		if err := im.importOne(pkg); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) loadManifest() (*Manifest, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.manifest != nil && im.now().Sub(im.manifestAt) < manifestTTL {
		return im.manifest, nil
	}

	data, err := os.ReadFile(im.manifestPath)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	im.manifest = &m
	im.manifestAt = im.now()
	return im.manifest, nil
}

func (im *Importer) importOne(pkg ManifestPackage) error {
	level := dictionary.NormalizeLevel(pkg.Level)
	if level <= dictionary.LevelCore {
		return nil
	}
	if pkg.Path == "" {
		return types.NewErrorDetail(types.CodeDictionaryNotReady,
			"missing package path", fmt.Sprintf("level=%d", level))
	}

	id := pkg.ID
	if id == "" {
		id = fmt.Sprintf("%d", level)
	}
	expectedHash := strings.ToLower(strings.TrimSpace(pkg.Hash))

	existing, err := im.store.GetDictionaryPackage(level)
	if err != nil {
		return types.WrapError(types.CodeDBError, "failed to load package record", err)
	}

	sameHash := existing != nil && existing.Hash != "" && expectedHash != "" && existing.Hash == expectedHash
	if existing != nil && existing.Status == "imported" && (sameHash || expectedHash == "") {
		return nil
	}

	// A changed hash means new content; the old tier's rows are stale.
	if existing != nil && expectedHash != "" && existing.Hash != "" && existing.Hash != expectedHash {
		if _, err := im.store.DeleteDictionaryEntriesByLevel(level); err != nil {
			return types.WrapError(types.CodeDBError, "failed to drop stale entries", err)
		}
		existing.Progress = 0
	}

	data, err := im.readPackage(pkg.Path)
	if err != nil {
		return types.WrapError(types.CodeDictionaryNotReady, "failed to read package content", err)
	}

	if expectedHash != "" {
		sum := sha256.Sum256(data)
		if actual := hex.EncodeToString(sum[:]); actual != expectedHash {
			return types.NewErrorDetail(types.CodeDictionaryNotReady,
				fmt.Sprintf("hash mismatch for level=%d", level),
				fmt.Sprintf("expected=%s actual=%s", expectedHash, actual))
		}
	}

	entries := normalizeEntries(dictionary.ParseJSONLines(data), level)

	startFrom := 0
	if existing != nil && existing.Progress > 0 {
		startFrom = existing.Progress
	}
	if startFrom > len(entries) {
		startFrom = len(entries)
	}

	record := types.DictionaryPackage{
		Level:    level,
		ID:       id,
		Path:     pkg.Path,
		Hash:     expectedHash,
		Status:   "importing",
		Entries:  len(entries),
		Progress: startFrom,
	}
	if err := im.checkpoint(record); err != nil {
		return err
	}

	for i := startFrom; i < len(entries); i += batchSize {
		end := i + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := im.store.PutDictionaryEntries(entries[i:end]); err != nil {
			return types.WrapError(types.CodeDBError, "failed to write entry batch", err)
		}
		record.Progress = end
		if err := im.checkpoint(record); err != nil {
			return err
		}
	}

	record.Status = "imported"
	record.Progress = len(entries)
	record.ImportedAt = im.now().UnixMilli()
	if err := im.checkpoint(record); err != nil {
		return err
	}

	if im.dict != nil {
		im.dict.Invalidate()
	}
	im.logger.Info("dictionary package imported",
		zap.Int("level", level),
		zap.Int("entries", len(entries)))
	return nil
}

func (im *Importer) checkpoint(record types.DictionaryPackage) error {
	record.UpdatedAt = im.now().UnixMilli()
	if err := im.store.PutDictionaryPackage(record); err != nil {
		return types.WrapError(types.CodeDBError, "failed to save package record", err)
	}
	return nil
}

// readPackage loads package content from a local path or an http(s) URL.
func (im *Importer) readPackage(p string) ([]byte, error) {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		resp, err := im.httpClient.Get(p)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("package download failed: status=%d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxPackageBytes))
	}
	return os.ReadFile(im.resolvePath(p))
}

func (im *Importer) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(im.manifestPath), p)
}

// normalizeEntries drops rows missing any required field and stamps the
// tier level, overriding whatever the file claimed.
func normalizeEntries(raw []types.DictionaryEntry, level int) []types.DictionaryEntry {
	out := make([]types.DictionaryEntry, 0, len(raw))
	for _, e := range raw {
		if e.ID == "" || e.Cn == "" || e.En == "" {
			continue
		}
		e.Level = level
		out = append(out, e)
	}
	return out
}
