package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// converterTimeout bounds one wkhtmltopdf invocation.
const converterTimeout = 30 * time.Second

// wellKnownConverterPaths are probed after $PATH.
var wellKnownConverterPaths = []string{
	"/usr/local/bin/wkhtmltopdf",
	"/usr/bin/wkhtmltopdf",
	"/opt/homebrew/bin/wkhtmltopdf",
	`C:\Program Files\wkhtmltopdf\bin\wkhtmltopdf.exe`,
}

// Converter shells out to wkhtmltopdf. The binary is located once and the
// result cached for the process lifetime.
type Converter struct {
	logger *zap.Logger

	once sync.Once
	path string
}

// NewConverter builds a converter that locates the binary lazily.
func NewConverter(logger *zap.Logger) *Converter {
	return &Converter{logger: logger}
}

// locate resolves the wkhtmltopdf binary. Resolution order: the
// ESCOLAR_WKHTMLTOPDF override, $PATH, then well-known install locations.
func (c *Converter) locate() string {
	c.once.Do(func() {
		if p := os.Getenv("ESCOLAR_WKHTMLTOPDF"); p != "" {
			if _, err := os.Stat(p); err == nil {
				c.path = p
				return
			}
			c.logger.Warn("ESCOLAR_WKHTMLTOPDF set but not found", zap.String("path", p))
		}
		if p, err := exec.LookPath("wkhtmltopdf"); err == nil {
			c.path = p
			return
		}
		for _, p := range wellKnownConverterPaths {
			if runtime.GOOS != "windows" && strings.HasSuffix(p, ".exe") {
				continue
			}
			if _, err := os.Stat(p); err == nil {
				c.path = p
				return
			}
		}
	})
	return c.path
}

// Available reports whether a converter binary was found.
func (c *Converter) Available() bool {
	return c.locate() != ""
}

// Convert renders htmlPath into pdfPath. Letter page, 5mm margins, local
// file access enabled so photo and logo references resolve.
func (c *Converter) Convert(ctx context.Context, htmlPath, pdfPath string) error {
	bin := c.locate()
	if bin == "" {
		return ErrConverterUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, converterTimeout)
	defer cancel()

	args := []string{
		"--page-size", "Letter",
		"--margin-top", "5mm",
		"--margin-bottom", "5mm",
		"--margin-left", "5mm",
		"--margin-right", "5mm",
		"--enable-local-file-access",
		"--quiet",
		htmlPath,
		pdfPath,
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(pdfPath)
		return fmt.Errorf("wkhtmltopdf failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
