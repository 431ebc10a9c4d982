package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"fileforge/internal/tools"
)

func (CLI) imagesToPDF(ctx context.Context, req Request, p *tools.ImagesToPDFParams) (Result, error) {
	req.report(30)

	out := filepath.Join(req.WorkDir, "combined.pdf")
	// magick <in...> <out>
	args := append(append([]string{}, req.Inputs...), out)
	if err := run(ctx, "magick", args...); err != nil {
		return Result{}, err
	}
	req.report(60)

	if _, err := os.Stat(out); err != nil {
		return Result{}, fmt.Errorf("magick produced no output: %w", err)
	}
	req.report(80)

	return Result{Path: out, Filename: p.OutputFilename, ContentType: "application/pdf"}, nil
}

func (CLI) convertImage(ctx context.Context, req Request, p *tools.ImageConvertParams) (Result, error) {
	in := req.Inputs[0]
	name := fileID(in) + "." + p.OutputFormat
	out := filepath.Join(req.WorkDir, name)

	aspect := p.MaintainAspectRatio == nil || *p.MaintainAspectRatio
	args := []string{in}
	if geom := resizeGeometry(p.Width, p.Height, aspect); geom != "" {
		args = append(args, "-resize", geom)
	}
	args = append(args, "-quality", strconv.Itoa(p.Quality), out)

	// magick <in> [-resize <geometry>] -quality <q> <out>
	if err := run(ctx, "magick", args...); err != nil {
		return Result{}, err
	}

	return Result{Path: out, Filename: name, ContentType: imageContentType(p.OutputFormat)}, nil
}

// resizeGeometry builds an imagemagick geometry argument. Without the
// bang suffix magick fits within the box preserving aspect ratio; with
// it the exact dimensions are forced.
func resizeGeometry(width, height *int, maintainAspect bool) string {
	if width == nil && height == nil {
		return ""
	}
	var w, h string
	if width != nil {
		w = strconv.Itoa(*width)
	}
	if height != nil {
		h = strconv.Itoa(*height)
	}
	geom := w + "x" + h
	if !maintainAspect && width != nil && height != nil {
		geom += "!"
	}
	return geom
}

func imageContentType(format string) string {
	switch format {
	case "jpg":
		return "image/jpeg"
	case "tiff":
		return "image/tiff"
	default:
		return "image/" + format
	}
}
