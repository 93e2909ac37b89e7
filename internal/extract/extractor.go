// Package extract pulls student data out of an existing certificate PDF so
// it can be re-rendered as a different kind. The text layer gives identity
// and enrollment fields; embedded images give photo candidates. Partial
// results are normal and reported as warnings, extraction fails outright
// only when the text layer yields nothing usable.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

// ErrExtractionFailed marks a PDF whose text layer produced no usable
// fields at all.
var ErrExtractionFailed = errors.New("pdf extraction failed")

// Data is the extraction result. Zero-valued fields simply were not found;
// each miss is listed in Warnings. PhotoCandidates carries every embedded
// image, largest first; picking one is the caller's job. HasGrades reports
// what the source contained even when the requested kind forces the grade
// table empty.
type Data struct {
	Student         types.Student
	Enrollment      types.Enrollment
	PhotoCandidates [][]byte `json:"-"`
	HasGrades       bool
	HasPhoto        bool
	Warnings        []string
}

// Extractor reads certificate PDFs.
type Extractor struct {
	logger *zap.Logger
}

// New builds an extractor.
func New(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract reads pdfPath and parses it for the requested target kind. For an
// estudios target the grade table is dropped even when the source has one,
// so the re-rendered certificate cannot leak grades.
func (e *Extractor) Extract(ctx context.Context, pdfPath string, target types.Kind) (*Data, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var text string
	var photos [][]byte
	var photoWarn string

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := readTextLayer(pdfPath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		text = t
		return nil
	})
	g.Go(func() error {
		// Photo extraction is best-effort: scanned certificates often
		// carry no usable embedded images.
		imgs, err := extractImages(ctx, pdfPath)
		if err != nil {
			photoWarn = "no se pudo extraer la fotografía del PDF"
			e.logger.Debug("photo extraction failed", zap.String("pdf", pdfPath), zap.Error(err))
			return nil
		}
		photos = imgs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data, err := assemble(text, photos, target)
	if err != nil {
		return nil, err
	}
	if photoWarn != "" {
		data.Warnings = append(data.Warnings, photoWarn)
	}
	return data, nil
}

// assemble combines the parsed text layer with the image candidates. The
// presence flags report what the source contained; the grade strip for an
// estudios target happens after HasGrades is recorded.
func assemble(text string, photos [][]byte, target types.Kind) (*Data, error) {
	data := parseText(text)
	data.PhotoCandidates = photos
	data.HasPhoto = len(photos) > 0
	data.HasGrades = len(data.Enrollment.Grades) > 0

	if data.Student.Name == "" && data.Student.CURP == "" {
		return nil, fmt.Errorf("%w: no student identity found in text layer", ErrExtractionFailed)
	}

	if target == types.KindStudies && data.HasGrades {
		data.Enrollment.Grades = nil
	}
	return data, nil
}

// readTextLayer concatenates the plain text of every page.
func readTextLayer(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errors.New("empty text layer")
	}
	return b.String(), nil
}

// extractImages dumps embedded images to a temp directory and returns their
// bytes, largest first. On these certificates the largest image is the
// student photo, but the caller decides.
func extractImages(ctx context.Context, pdfPath string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "escolar-photo-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := api.ExtractImagesFile(pdfPath, dir, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var candidates [][]byte
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil || len(b) == 0 {
			continue
		}
		candidates = append(candidates, b)
	}
	if len(candidates) == 0 {
		return nil, errors.New("no embedded images")
	}
	sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	return candidates, nil
}
