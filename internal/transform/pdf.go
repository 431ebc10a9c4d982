package transform

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"fileforge/internal/tools"
)

// mergePDFs appends inputs onto an accumulator one at a time so that
// reported progress tracks work actually done.
func (CLI) mergePDFs(ctx context.Context, req Request, p *tools.MergeParams) (Result, error) {
	n := len(req.Inputs)
	acc := filepath.Join(req.WorkDir, "merged_0.pdf")
	if err := copyFile(req.Inputs[0], acc); err != nil {
		return Result{}, fmt.Errorf("staging first merge input: %w", err)
	}
	req.report(10 + 70*1/n)

	for i := 1; i < n; i++ {
		next := filepath.Join(req.WorkDir, fmt.Sprintf("merged_%d.pdf", i))
		// qpdf --empty --pages <acc> <input> -- <next>
		if err := run(ctx, "qpdf", "--empty", "--pages", acc, req.Inputs[i], "--", next); err != nil {
			return Result{}, err
		}
		acc = next
		req.report(10 + 70*(i+1)/n)
	}

	return Result{Path: acc, Filename: p.OutputFilename, ContentType: "application/pdf"}, nil
}

func (CLI) splitPDF(ctx context.Context, req Request, p *tools.SplitParams) (Result, error) {
	in := req.Inputs[0]

	var spec string
	switch p.SplitType {
	case tools.SplitPages:
		spec = pageSpec(p.Pages)
	case tools.SplitRanges:
		spec = rangeSpec(p.Ranges)
	default:
		return Result{}, fmt.Errorf("unknown split_type %q", p.SplitType)
	}

	out := filepath.Join(req.WorkDir, "split.pdf")
	// qpdf --empty --pages <in> <spec> -- <out>
	if err := run(ctx, "qpdf", "--empty", "--pages", in, spec, "--", out); err != nil {
		return Result{}, err
	}

	name := fmt.Sprintf("split_%s.pdf", fileID(in))
	return Result{Path: out, Filename: name, ContentType: "application/pdf"}, nil
}

var gsQuality = map[string]string{
	tools.CompressLow:    "/screen",
	tools.CompressMedium: "/ebook",
	tools.CompressHigh:   "/printer",
}

func (CLI) compressPDF(ctx context.Context, req Request, p *tools.CompressParams) (Result, error) {
	in := req.Inputs[0]
	out := filepath.Join(req.WorkDir, "compressed.pdf")

	quality, ok := gsQuality[p.Level]
	if !ok {
		quality = gsQuality[tools.CompressMedium]
	}

	// gs -sDEVICE=pdfwrite -dCompatibilityLevel=1.4 -dPDFSETTINGS=<quality>
	//    -dNOPAUSE -dQUIET -dBATCH -sOutputFile=<out> <in>
	if err := run(ctx, "gs",
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS="+quality,
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-sOutputFile="+out,
		in,
	); err != nil {
		return Result{}, err
	}

	name := fmt.Sprintf("compressed_%s.pdf", fileID(in))
	return Result{Path: out, Filename: name, ContentType: "application/pdf"}, nil
}

// convertDocument handles both conversion directions through
// libreoffice, which names its output after the input basename.
func (CLI) convertDocument(ctx context.Context, req Request, target, contentType string) (Result, error) {
	in := req.Inputs[0]

	// libreoffice --headless --convert-to <target> --outdir <dir> <in>
	if err := run(ctx, "libreoffice", "--headless", "--convert-to", target, "--outdir", req.WorkDir, in); err != nil {
		return Result{}, err
	}

	name := fileID(in) + "." + target
	out := filepath.Join(req.WorkDir, name)
	if _, err := os.Stat(out); err != nil {
		return Result{}, fmt.Errorf("libreoffice produced no output for %s: %w", filepath.Base(in), err)
	}

	return Result{Path: out, Filename: name, ContentType: contentType}, nil
}

func (CLI) pdfToImages(ctx context.Context, req Request, p *tools.PDFToImagesParams) (Result, error) {
	in := req.Inputs[0]

	pagesDir := filepath.Join(req.WorkDir, "pages")
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return Result{}, err
	}

	flag := "-png"
	if p.OutputFormat == "jpg" {
		flag = "-jpeg"
	}

	prefix := filepath.Join(pagesDir, "page")
	// pdftoppm -png -r 150 <in> <prefix>
	if err := run(ctx, "pdftoppm", flag, "-r", "150", in, prefix); err != nil {
		return Result{}, err
	}

	// pdftoppm zero-pads page numbers uniformly, so a lexical sort
	// restores page order.
	pages, err := filepath.Glob(prefix + "-*." + p.OutputFormat)
	if err != nil {
		return Result{}, err
	}
	if len(pages) == 0 {
		return Result{}, fmt.Errorf("pdftoppm produced no pages for %s", filepath.Base(in))
	}
	sort.Strings(pages)

	name := fileID(in) + "_images.zip"
	out := filepath.Join(req.WorkDir, name)
	if err := zipImages(out, pages, p.OutputFormat); err != nil {
		return Result{}, err
	}

	return Result{Path: out, Filename: name, ContentType: "application/zip"}, nil
}

// pageSpec renders a qpdf page selection like "1,3,5".
func pageSpec(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

// rangeSpec renders a qpdf page selection like "1-4,7-9".
func rangeSpec(ranges []tools.PageRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = fmt.Sprintf("%d-%d", r.Start, r.End)
	}
	return strings.Join(parts, ",")
}

// zipImages packs page images into one archive, renumbering entries
// page_1..page_n in the given order.
func zipImages(dst string, pages []string, format string) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	for i, page := range pages {
		w, err := zw.Create(fmt.Sprintf("page_%d.%s", i+1, format))
		if err == nil {
			var src *os.File
			src, err = os.Open(page)
			if err == nil {
				_, err = io.Copy(w, src)
				src.Close()
			}
		}
		if err != nil {
			f.Close()
			return fmt.Errorf("archiving %s: %w", filepath.Base(page), err)
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
