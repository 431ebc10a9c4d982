package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Split modes.
const (
	SplitPages  = "pages"
	SplitRanges = "ranges"
)

// Compression tiers, lowest output quality first.
const (
	CompressLow    = "low"
	CompressMedium = "medium"
	CompressHigh   = "high"
)

const (
	defaultMergeFilename = "merged.pdf"
	defaultImageQuality  = 90
)

func checkStruct(tool Name, v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%s params: field %s failed %q validation", tool, f.Field(), f.Tag())
		}
		return fmt.Errorf("%s params: %w", tool, err)
	}
	return nil
}

// Output filenames are metadata only (blobs are keyed by id), but a
// path separator in one would produce confusing download headers.
func checkFilename(tool Name, name string) error {
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%s params: output_filename must be a bare file name", tool)
	}
	return nil
}

// MergeParams configures pdf_merge. Input file order is taken from the
// submitted file-id list.
type MergeParams struct {
	OutputFilename string `json:"output_filename,omitempty" validate:"omitempty,max=255"`
}

func (p *MergeParams) Tool() Name { return PDFMerge }

func (p *MergeParams) Validate() error {
	if p.OutputFilename == "" {
		p.OutputFilename = defaultMergeFilename
	}
	if err := checkFilename(p.Tool(), p.OutputFilename); err != nil {
		return err
	}
	return checkStruct(p.Tool(), p)
}

// PageRange is an inclusive 1-based page interval.
type PageRange struct {
	Start int `json:"start" validate:"gte=1"`
	End   int `json:"end" validate:"gtefield=Start"`
}

// SplitParams configures pdf_split. Exactly the list matching SplitType
// is consulted; page numbers are 1-based.
type SplitParams struct {
	SplitType string      `json:"split_type" validate:"required,oneof=pages ranges"`
	Pages     []int       `json:"pages,omitempty" validate:"required_if=SplitType pages,omitempty,min=1,dive,gte=1"`
	Ranges    []PageRange `json:"ranges,omitempty" validate:"required_if=SplitType ranges,omitempty,min=1,dive"`
}

func (p *SplitParams) Tool() Name { return PDFSplit }

func (p *SplitParams) Validate() error {
	return checkStruct(p.Tool(), p)
}

// CompressParams configures pdf_compress.
type CompressParams struct {
	Level string `json:"compression_level,omitempty" validate:"omitempty,oneof=low medium high"`
}

func (p *CompressParams) Tool() Name { return PDFCompress }

func (p *CompressParams) Validate() error {
	if p.Level == "" {
		p.Level = CompressMedium
	}
	return checkStruct(p.Tool(), p)
}

// PDFToWordParams configures pdf_to_word, which takes no options.
type PDFToWordParams struct{}

func (p *PDFToWordParams) Tool() Name      { return PDFToWord }
func (p *PDFToWordParams) Validate() error { return nil }

// WordToPDFParams configures word_to_pdf, which takes no options.
type WordToPDFParams struct{}

func (p *WordToPDFParams) Tool() Name      { return WordToPDF }
func (p *WordToPDFParams) Validate() error { return nil }

// PDFToImagesParams configures pdf_to_images. The output is a zip
// archive with one image per page.
type PDFToImagesParams struct {
	OutputFormat string `json:"output_format" validate:"required,oneof=png jpg"`
}

func (p *PDFToImagesParams) Tool() Name { return PDFToImages }

func (p *PDFToImagesParams) Validate() error {
	if strings.EqualFold(p.OutputFormat, "jpeg") {
		p.OutputFormat = "jpg"
	}
	p.OutputFormat = strings.ToLower(p.OutputFormat)
	return checkStruct(p.Tool(), p)
}

// ImagesToPDFParams configures images_to_pdf. Pages follow the
// submitted file-id order.
type ImagesToPDFParams struct {
	OutputFilename string `json:"output_filename,omitempty" validate:"omitempty,max=255"`
}

func (p *ImagesToPDFParams) Tool() Name { return ImagesToPDF }

func (p *ImagesToPDFParams) Validate() error {
	if p.OutputFilename == "" {
		p.OutputFilename = defaultMergeFilename
	}
	if err := checkFilename(p.Tool(), p.OutputFilename); err != nil {
		return err
	}
	return checkStruct(p.Tool(), p)
}

// ImageConvertParams configures image_convert. Width and height are
// optional; when only one is set the other keeps the source dimension.
type ImageConvertParams struct {
	OutputFormat        string `json:"output_format" validate:"required,oneof=png jpg webp gif tiff bmp"`
	Quality             int    `json:"quality,omitempty" validate:"gte=1,lte=100"`
	Width               *int   `json:"width,omitempty" validate:"omitempty,gte=1,lte=10000"`
	Height              *int   `json:"height,omitempty" validate:"omitempty,gte=1,lte=10000"`
	MaintainAspectRatio *bool  `json:"maintain_aspect_ratio,omitempty"`
}

func (p *ImageConvertParams) Tool() Name { return ImageConvert }

func (p *ImageConvertParams) Validate() error {
	if strings.EqualFold(p.OutputFormat, "jpeg") {
		p.OutputFormat = "jpg"
	}
	p.OutputFormat = strings.ToLower(p.OutputFormat)
	if p.Quality == 0 {
		p.Quality = defaultImageQuality
	}
	if p.MaintainAspectRatio == nil {
		t := true
		p.MaintainAspectRatio = &t
	}
	return checkStruct(p.Tool(), p)
}
