// Package convert renders source documents to PDF through a headless
// LibreOffice subprocess.
package convert

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/observability"
)

// Converter shells out to soffice. Each call gets its own user profile so
// concurrent conversions do not fight over the profile lock.
type Converter struct {
	sofficePath string
	timeout     time.Duration
}

// New builds a converter. An empty sofficePath falls back to "soffice" on
// PATH; timeoutSeconds below 1 defaults to 60.
func New(sofficePath string, timeoutSeconds int) *Converter {
	if sofficePath == "" {
		sofficePath = "soffice"
	}
	if timeoutSeconds < 1 {
		timeoutSeconds = 60
	}
	return &Converter{sofficePath: sofficePath, timeout: time.Duration(timeoutSeconds) * time.Second}
}

// ToPDF converts src into outDir and returns the produced PDF path.
func (c *Converter) ToPDF(ctx context.Context, src, outDir string) (string, error) {
	profile, err := os.MkdirTemp("", "soffice-profile-*")
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryConvert, errors.SeverityError, "create soffice profile dir")
	}
	defer os.RemoveAll(profile)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{
		"-env:UserInstallation=file://" + profile,
		"--headless",
		"--invisible",
		"--nologo",
		"--norestore",
		"--convert-to", "pdf:writer_pdf_Export",
		"--outdir", outDir,
		src,
	}
	start := time.Now()
	cmd := exec.CommandContext(ctx, c.sofficePath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.Newf(errors.CategoryConvert, errors.SeverityError, "soffice timed out after %s", c.timeout)
		}
		return "", errors.Wrap(err, errors.CategoryConvert, errors.SeverityError,
			"soffice failed: "+errors.Truncate(string(out), 500))
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	pdf := filepath.Join(outDir, base+".pdf")
	info, err := os.Stat(pdf)
	if err != nil || info.Size() == 0 {
		return "", errors.New(errors.CategoryConvert, errors.SeverityError, "soffice produced no output")
	}

	observability.Debug(ctx, "converted to pdf",
		slog.String("src", filepath.Base(src)),
		slog.Duration("took", time.Since(start)))
	return pdf, nil
}
