// Package transform runs the actual file conversions by shelling out
// to the system toolchain: qpdf for merge/split, ghostscript for
// compression, libreoffice for document conversion, poppler's pdftoppm
// for rasterization and imagemagick for image work.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"fileforge/internal/tools"
)

// Request carries everything a transform needs: staged input paths in
// submission order, the validated params and a scratch directory the
// caller owns. Input basenames are the originating file ids, which
// output naming derives from.
type Request struct {
	Tool     tools.Name
	Inputs   []string
	Params   tools.Params
	WorkDir  string
	Progress func(pct int)
}

func (r Request) report(pct int) {
	if r.Progress != nil {
		r.Progress(pct)
	}
}

// Result describes the produced artifact on local disk.
type Result struct {
	Path        string
	Filename    string
	ContentType string
}

// Executor runs one transform to completion.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// CLI is the production Executor backed by external binaries.
type CLI struct{}

// Execute dispatches on the params variant. The tool name on the
// request must match the params type.
func (c CLI) Execute(ctx context.Context, req Request) (Result, error) {
	switch p := req.Params.(type) {
	case *tools.MergeParams:
		return c.mergePDFs(ctx, req, p)
	case *tools.SplitParams:
		return c.splitPDF(ctx, req, p)
	case *tools.CompressParams:
		return c.compressPDF(ctx, req, p)
	case *tools.PDFToWordParams:
		return c.convertDocument(ctx, req, "docx", wordContentType)
	case *tools.WordToPDFParams:
		return c.convertDocument(ctx, req, "pdf", "application/pdf")
	case *tools.PDFToImagesParams:
		return c.pdfToImages(ctx, req, p)
	case *tools.ImagesToPDFParams:
		return c.imagesToPDF(ctx, req, p)
	case *tools.ImageConvertParams:
		return c.convertImage(ctx, req, p)
	default:
		return Result{}, fmt.Errorf("no transform registered for tool %q", req.Tool)
	}
}

const wordContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// run executes one external command, honoring the context deadline.
func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s failed: %v\nStderr: %s", name, err, stderr.String())
	}
	return nil
}

// fileID recovers the file id a staged input was named after.
func fileID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
