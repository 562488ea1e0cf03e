// Package seeding imports page trees and style sheets from a directory of
// files named after their page id.
package seeding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/services"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// SeedAuthor is recorded as the creator of history entries made by a seed run.
const SeedAuthor = "seed"

// ContentWriter is the part of the write service a seed run needs.
type ContentWriter interface {
	SyncContent(ctx context.Context, pageID string, tree content.Value, force bool, createdBy *string) (*services.SaveResult, error)
	SaveStyles(ctx context.Context, pageID, css string, createdBy *string) (*services.StylesSaveResult, error)
	StylesExist(ctx context.Context, pageID string) (bool, error)
}

// Report lists what a seed run did, by page id.
type Report struct {
	Pages     []string          `json:"pages"`
	Styles    []string          `json:"styles"`
	Conflicts []string          `json:"conflicts,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Loader imports <pageId>.yaml, .yml and .json trees and <pageId>.css blobs.
type Loader struct {
	writer ContentWriter
	force  bool
	logger *logging.ChanneledLogger
}

func NewLoader(writer ContentWriter, force bool, logger *logging.ChanneledLogger) *Loader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Loader{writer: writer, force: force, logger: logger}
}

// Run imports every recognised file in dir in name order. Pages that already
// have content or styles are reported as conflicts unless the loader forces. Files that
// fail to parse or import are reported and the run continues; the returned
// error joins those failures.
func (l *Loader) Run(ctx context.Context, dir string) (*Report, error) {
	start := time.Now()
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory %s: %w", dir, err)
	}

	report := &Report{Pages: []string{}, Styles: []string{}, Failed: map[string]string{}}
	author := SeedAuthor
	var errs []error

	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name()))
		pageID := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		path := filepath.Join(dir, f.Name())

		var importErr error
		switch ext {
		case ".yaml", ".yml", ".json":
			importErr = l.importTree(ctx, path, ext, pageID, &author, report)
		case ".css":
			importErr = l.importStyles(ctx, path, pageID, &author, report)
		default:
			continue
		}
		if importErr != nil {
			report.Failed[f.Name()] = importErr.Error()
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), importErr))
			l.logger.Startup().Warn("Seed file failed", "file", f.Name(), "error", importErr)
		}
	}

	report.Duration = time.Since(start)
	l.logger.Startup().Info("Seed run finished",
		"dir", dir, "pages", len(report.Pages), "styles", len(report.Styles),
		"conflicts", len(report.Conflicts), "failed", len(report.Failed), "duration", report.Duration)
	return report, errors.Join(errs...)
}

func (l *Loader) importTree(ctx context.Context, path, ext, pageID string, author *string, report *Report) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var tree content.Value
	if ext == ".json" {
		tree, err = content.ParseJSON(data)
	} else {
		tree, err = ParseYAML(data)
	}
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	res, err := l.writer.SyncContent(ctx, pageID, tree, l.force, author)
	var conflict *content.ConflictError
	if errors.As(err, &conflict) {
		report.Conflicts = append(report.Conflicts, conflict.PageID)
		l.logger.Startup().Info("Seed skipped existing page", "pageId", conflict.PageID, "entries", conflict.Entries)
		return nil
	}
	if err != nil {
		return err
	}
	report.Pages = append(report.Pages, res.PageID)
	return nil
}

func (l *Loader) importStyles(ctx context.Context, path, pageID string, author *string, report *Report) error {
	if !l.force {
		exists, err := l.writer.StylesExist(ctx, pageID)
		if err != nil {
			return err
		}
		if exists {
			report.Conflicts = append(report.Conflicts, content.ParseScope(pageID).Prefix()+".css")
			return nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res, err := l.writer.SaveStyles(ctx, pageID, string(data), author)
	if err != nil {
		return err
	}
	report.Styles = append(report.Styles, res.PageID)
	return nil
}
