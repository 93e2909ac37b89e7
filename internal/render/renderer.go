// Package render turns a student record plus school configuration into a
// certificate PDF. Templates are HTML by convention certificate_<kind>.html;
// conversion runs through an external wkhtmltopdf binary. When the
// converter is missing the HTML artifact itself is the result so the caller
// can still preview.
package render

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/config"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

var (
	// ErrTemplateMissing marks a kind without a usable template.
	ErrTemplateMissing = errors.New("certificate template missing")
	// ErrConverterUnavailable is returned only when the caller demanded a
	// PDF; otherwise converter absence degrades to an HTML artifact.
	ErrConverterUnavailable = errors.New("html-to-pdf converter unavailable")
	// ErrMissingGrades marks a grades-bearing kind with no grade rows and
	// the fallback disabled.
	ErrMissingGrades = errors.New("certificate kind requires grades")
	// ErrIOFailed wraps filesystem failures.
	ErrIOFailed = errors.New("certificate output failed")
)

// Request is one render job.
type Request struct {
	Kind       types.Kind
	Student    types.Student
	Enrollment types.Enrollment
	PhotoPath  string
	// DestPath overrides the deterministic artifact name.
	DestPath string
	// RequirePDF turns converter absence into ErrConverterUnavailable
	// instead of falling back to HTML.
	RequirePDF bool
}

// Artifact is the render result.
type Artifact struct {
	Path      string
	Converted bool
	Warnings  []string
}

// Renderer renders and converts certificates for one configuration
// snapshot.
type Renderer struct {
	cfg       *config.Config
	converter *Converter
	logger    *zap.Logger
}

// New builds a renderer over the given config snapshot.
func New(cfg *config.Config, logger *zap.Logger) *Renderer {
	return &Renderer{cfg: cfg, converter: NewConverter(logger), logger: logger}
}

// gradeRow is the display form of one subject line.
type gradeRow struct {
	Subject string
	P1      string
	P2      string
	P3      string
	Average string
}

// templateData is the contract every certificate template consumes.
type templateData struct {
	Student     types.Student
	Enrollment  types.Enrollment
	School      config.SchoolInfo
	Location    config.LocationInfo
	FooterText  string
	AccentColor string
	SchoolYear  string
	ShowGrades  bool
	Grades      []gradeRow
	PhotoPath   string
	LogoPath    string
	IssuedOn    string
	KindTitle   string
}

var kindTitles = map[types.Kind]string{
	types.KindStudies:  "CONSTANCIA DE ESTUDIOS",
	types.KindGrades:   "CONSTANCIA DE ESTUDIOS CON CALIFICACIONES",
	types.KindTransfer: "CONSTANCIA DE TRASLADO",
}

// Render produces the artifact for one request.
func (r *Renderer) Render(ctx context.Context, req Request) (*Artifact, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("invalid certificate kind %q", req.Kind)
	}

	tmpl, err := r.loadTemplate(req.Kind)
	if err != nil {
		return nil, err
	}

	data, err := r.buildData(req)
	if err != nil {
		return nil, err
	}

	dest := req.DestPath
	if dest == "" {
		dest = filepath.Join(r.cfg.Paths.Output, artifactName(req.Kind, req.Student.CURP, time.Now()))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailed, err)
	}

	htmlPath := strings.TrimSuffix(dest, filepath.Ext(dest)) + ".html"
	f, err := os.Create(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailed, err)
	}
	if err := tmpl.Execute(f, data); err != nil {
		f.Close()
		os.Remove(htmlPath)
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailed, err)
	}

	art := &Artifact{Path: htmlPath}

	if !r.converter.Available() {
		if req.RequirePDF {
			os.Remove(htmlPath)
			return nil, ErrConverterUnavailable
		}
		art.Warnings = append(art.Warnings, "convertidor PDF no disponible; se entrega la vista HTML")
		return art, nil
	}

	if err := r.converter.Convert(ctx, htmlPath, dest); err != nil {
		if req.RequirePDF {
			os.Remove(htmlPath)
			return nil, err
		}
		r.logger.Warn("pdf conversion failed, keeping html artifact", zap.Error(err))
		art.Warnings = append(art.Warnings, "la conversión a PDF falló; se entrega la vista HTML")
		return art, nil
	}

	// The intermediate HTML is scratch once the PDF exists.
	os.Remove(htmlPath)
	art.Path = dest
	art.Converted = true
	return art, nil
}

// buildData assembles template data and applies the per-kind grade policy.
func (r *Renderer) buildData(req Request) (*templateData, error) {
	data := &templateData{
		Student:     req.Student,
		Enrollment:  req.Enrollment,
		School:      r.cfg.SchoolInfo,
		Location:    r.cfg.LocationInfo,
		FooterText:  r.cfg.Customization.FooterText,
		AccentColor: r.cfg.Customization.AccentColor,
		SchoolYear:  req.Enrollment.SchoolYear,
		PhotoPath:   absPath(req.PhotoPath),
		LogoPath:    absPath(r.cfg.SchoolInfo.Logo),
		IssuedOn:    time.Now().Format("02/01/2006"),
		KindTitle:   kindTitles[req.Kind],
	}
	if data.AccentColor == "" {
		data.AccentColor = "#1a3c6e"
	}
	if data.SchoolYear == "" {
		data.SchoolYear = r.cfg.AcademicInfo.CurrentYear
	}

	if req.Kind == types.KindStudies {
		// Identity-only: grades are stripped even if the record has them.
		data.ShowGrades = false
		data.Grades = nil
		return data, nil
	}

	data.ShowGrades = true
	grades := req.Enrollment.Grades
	if len(grades) == 0 {
		allowed := r.cfg.Features.UseFallbackSubjects
		if req.Kind == types.KindTransfer {
			allowed = allowed && r.cfg.Features.FallbackSubjectsForTransfer
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrMissingGrades, req.Kind)
		}
		for _, subject := range r.cfg.SubjectsForGrade(req.Enrollment.Grade) {
			data.Grades = append(data.Grades, gradeRow{Subject: subject, P1: "-", P2: "-", P3: "-", Average: "-"})
		}
		return data, nil
	}

	for _, g := range grades {
		data.Grades = append(data.Grades, gradeRow{
			Subject: g.Subject,
			P1:      fmtGrade(g.P1),
			P2:      fmtGrade(g.P2),
			P3:      fmtGrade(g.P3),
			Average: fmtGrade(g.Average),
		})
	}
	return data, nil
}

func fmtGrade(v float64) string {
	if v <= 0 {
		return "-"
	}
	if v == float64(int(v)) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.1f", v)
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// artifactName builds the deterministic file name:
// certificate_<kind>_<curp-or-anon>_<YYYYMMDD_HHMMSS>.pdf
func artifactName(kind types.Kind, curp string, now time.Time) string {
	who := strings.ToUpper(strings.TrimSpace(curp))
	if who == "" {
		who = "anon"
	}
	return fmt.Sprintf("certificate_%s_%s_%s.pdf", kind, who, now.Format("20060102_150405"))
}

// loadTemplate prefers the on-disk template directory and falls back to the
// embedded defaults.
func (r *Renderer) loadTemplate(kind types.Kind) (*template.Template, error) {
	name := fmt.Sprintf("certificate_%s.html", kind)

	if dir := r.cfg.Paths.Templates; dir != "" {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			tmpl, err := template.ParseFiles(path)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrTemplateMissing, name, err)
			}
			return tmpl, nil
		}
	}

	tmpl, err := template.ParseFS(embeddedTemplates, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, name)
	}
	return tmpl, nil
}
