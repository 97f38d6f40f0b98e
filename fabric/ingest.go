package fabric

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/fileutils"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/imageutil"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/logging"
)

// FabricAnalyzer asks a vision model to describe one fabric photo. The returned text is expected,
// but not trusted, to be a JSON object.
type FabricAnalyzer interface {
	DescribeFabric(ctx context.Context, photo imageutil.Photo, viewHint string) (string, error)
}

type IngestOptions struct {
	WatchDir     string
	ProcessedDir string
	// FailedDir receives photos that can never produce a usable entry (unreadable images, and
	// degraded ones when SkipDegraded is set). Defaults to ProcessedDir/unparsed.
	FailedDir   string
	CatalogPath string

	Concurrency  int
	SkipDegraded bool

	Log *logging.Logger
}

type IngestResult struct {
	Found    int
	Appended int
	Degraded int
	Skipped  int
	Failed   int

	Entries    []RawFabricRecord
	Strategies map[Strategy]int
}

var viewHints = []struct {
	marker string
	hint   string
}{
	{"detail", "This image is a close-up detail shot of the fabric's embellishments or texture."},
	{"back", "This image shows the back of the fabric or garment."},
	{"dupatta", "This image is of the dupatta (scarf) associated with the outfit."},
	{"bottoms", "This image is of the pants or bottom piece of the outfit."},
}

const mainViewHint = "This is the main photo of the full garment or fabric."

// ViewHint tells the vision model which view of the garment a photo shows, based on its file name.
func ViewHint(filename string) string {
	base := filepath.Base(filename)
	for _, v := range viewHints {
		if strings.Contains(base, v.marker) {
			return v.hint
		}
	}
	return mainViewHint
}

type analysis struct {
	path    string
	raw     string
	invalid bool
	done    bool
}

// IngestImages analyses every photo in the watch folder, appends one catalog entry per photo in
// file-name order and moves each photo out of the watch folder. Photos are analysed concurrently;
// the catalog is written sequentially so identifiers are deterministic. A photo whose analysis
// fails stays in the watch folder for the next run.
func IngestImages(ctx context.Context, analyzer FabricAnalyzer, opt IngestOptions) (IngestResult, error) {
	if analyzer == nil {
		return IngestResult{}, errors.New("IngestImages: analyzer is nil")
	}
	if opt.WatchDir == "" {
		return IngestResult{}, errors.New("IngestImages: watch dir is empty")
	}
	if opt.ProcessedDir == "" {
		return IngestResult{}, errors.New("IngestImages: processed dir is empty")
	}
	if opt.CatalogPath == "" {
		return IngestResult{}, errors.New("IngestImages: catalog path is empty")
	}
	if opt.FailedDir == "" {
		opt.FailedDir = filepath.Join(opt.ProcessedDir, "unparsed")
	}
	if opt.Concurrency <= 0 {
		opt.Concurrency = 1
	}
	log := opt.Log
	if log == nil {
		log = logging.NewNop()
	}

	paths, err := fileutils.ListFiles(opt.WatchDir, IsImageFile)
	if err != nil {
		return IngestResult{}, fmt.Errorf("IngestImages: list images: %w", err)
	}
	res := IngestResult{Found: len(paths), Strategies: map[Strategy]int{}}
	if len(paths) == 0 {
		return res, nil
	}

	results := make([]analysis, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.Concurrency)
	for i, path := range paths {
		i, path := i, path
		results[i].path = path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			photo, err := imageutil.LoadPhoto(path)
			if err != nil {
				log.Warn("skipping unreadable image", "image", path, "error", err)
				results[i].invalid = true
				results[i].done = true
				return nil
			}
			raw, err := analyzer.DescribeFabric(gctx, photo, ViewHint(path))
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Error("analysis failed; will retry next run", "image", path, "error", err)
				return nil
			}
			log.Debug("model response", "image", path, "raw", fileutils.Truncate(fileutils.SingleLine(raw), 500))
			results[i].raw = raw
			results[i].done = true
			return nil
		})
	}
	waitErr := g.Wait()

	records, err := LoadCatalog(opt.CatalogPath)
	if err != nil {
		return res, fmt.Errorf("IngestImages: %w", err)
	}

	for _, a := range results {
		if !a.done {
			res.Failed++
			continue
		}
		name := filepath.Base(a.path)
		if a.invalid {
			res.Skipped++
			if err := fileutils.MoveFile(a.path, filepath.Join(opt.FailedDir, name)); err != nil {
				log.Error("move unreadable image", "image", a.path, "error", err)
			}
			continue
		}

		ex := ExtractRecord(a.raw)
		res.Strategies[ex.Strategy]++
		if ex.Degraded {
			res.Degraded++
			log.Warn("model response could not be parsed", "image", a.path, "error", ex.Err)
			if opt.SkipDegraded {
				res.Skipped++
				if err := fileutils.MoveFile(a.path, filepath.Join(opt.FailedDir, name)); err != nil {
					log.Error("move degraded image", "image", a.path, "error", err)
				}
				continue
			}
		} else {
			log.Debug("parsed model response", "image", a.path, "strategy", ex.Strategy)
		}

		dest := filepath.Join(opt.ProcessedDir, name)
		entry := NewCatalogEntry(NextFabricID(len(records)), dest, ex)
		records = append(records, entry)
		if err := SaveCatalog(opt.CatalogPath, records); err != nil {
			return res, fmt.Errorf("IngestImages: %w", err)
		}
		if err := fileutils.MoveFile(a.path, dest); err != nil {
			return res, fmt.Errorf("IngestImages: %w", err)
		}
		res.Appended++
		res.Entries = append(res.Entries, entry)
		log.Info("saved fabric", "id", entry.ID, "name", entry.Name, "strategy", ex.Strategy, "degraded", ex.Degraded)
	}

	if waitErr != nil {
		return res, waitErr
	}
	return res, nil
}
