package fabric

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/fileutils"
)

const (
	DefaultCatalogPath           = "fabric_inventory.json"
	DefaultNormalizedCatalogPath = "fabric_inventory_normalized.json"
)

// imageExtensions are the photo formats accepted in the watch folder.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// IsImageFile reports whether name has a supported photo extension.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadCatalog reads the raw catalog. A missing or empty file is an empty catalog.
func LoadCatalog(path string) ([]RawFabricRecord, error) {
	return loadRecordList[RawFabricRecord]("LoadCatalog", path)
}

// LoadNormalizedCatalog reads a normalized catalog. Entries are coerced on load, so a raw catalog
// is accepted as well.
func LoadNormalizedCatalog(path string) ([]FabricRecord, error) {
	return loadRecordList[FabricRecord]("LoadNormalizedCatalog", path)
}

// SaveCatalog writes the raw catalog atomically.
func SaveCatalog(path string, records []RawFabricRecord) error {
	if records == nil {
		records = []RawFabricRecord{}
	}
	return saveRecordList("SaveCatalog", path, records)
}

// SaveNormalizedCatalog writes a normalized catalog atomically.
func SaveNormalizedCatalog(path string, records []FabricRecord) error {
	if records == nil {
		records = []FabricRecord{}
	}
	return saveRecordList("SaveNormalizedCatalog", path, records)
}

func loadRecordList[T any](fn, path string) ([]T, error) {
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty", fn)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("%s: read file: %w", fn, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%s: unmarshal: %w", fn, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func saveRecordList(fn, path string, v any) error {
	if path == "" {
		return fmt.Errorf("%s: path is empty", fn)
	}
	if err := fileutils.WriteJSONFileAtomic(path, v, true); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}

// NextFabricID returns the identifier for the entry appended after existing entries.
func NextFabricID(existing int) string {
	return fmt.Sprintf("fabric_%03d", existing+1)
}

// FabricNameFromImage derives the catalog name from a photo path: the lowercased base name
// without its image extension.
func FabricNameFromImage(path string) string {
	name := strings.ToLower(filepath.Base(path))
	if IsImageFile(name) {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

// NewCatalogEntry builds the catalog entry for one analysed photo. The bookkeeping fields start
// blank and the entry is marked upcycle-only until someone reviews it.
func NewCatalogEntry(id, imagePath string, ex Extraction) RawFabricRecord {
	f := ex.Fields
	return RawFabricRecord{
		ID:                       id,
		Name:                     FabricNameFromImage(imagePath),
		ImageMain:                imagePath,
		Material:                 f.Material,
		Texture:                  f.Texture,
		Colors:                   append([]string{}, f.Colors...),
		Embellishments:           f.Embellishments,
		EmbellishmentDescription: f.EmbellishmentDescription,
		IsWearableAsIs:           "",
		SizeIssue:                "",
		UpcycleOnly:              true,
		Notes:                    "",
		Degraded:                 ex.Degraded,
		Extra:                    extraKeys(f.Extra, recordKeys),
	}
}

// AppendCatalogEntry loads the catalog at path, appends an entry for imagePath with the next
// identifier and saves the catalog.
func AppendCatalogEntry(path, imagePath string, ex Extraction) (RawFabricRecord, error) {
	if imagePath == "" {
		return RawFabricRecord{}, errors.New("AppendCatalogEntry: imagePath is empty")
	}
	records, err := LoadCatalog(path)
	if err != nil {
		return RawFabricRecord{}, fmt.Errorf("AppendCatalogEntry: %w", err)
	}
	entry := NewCatalogEntry(NextFabricID(len(records)), imagePath, ex)
	records = append(records, entry)
	if err := SaveCatalog(path, records); err != nil {
		return RawFabricRecord{}, fmt.Errorf("AppendCatalogEntry: %w", err)
	}
	return entry, nil
}

// SummaryLine renders a record the way the design prompt lists fabrics:
//
//	- name: material, texture, colors: a, b, embellishments: description
func SummaryLine(r FabricRecord) string {
	return fmt.Sprintf("- %s: %s, %s, colors: %s, embellishments: %s",
		r.Name, r.Material, r.Texture, strings.Join(r.Colors, ", "), r.EmbellishmentDescription)
}
