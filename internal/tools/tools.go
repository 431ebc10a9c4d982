// Package tools defines the catalog of processing tools and their
// per-tool parameter types.
package tools

import (
	"encoding/json"
	"fmt"

	"fileforge/internal/models"
)

// Name identifies a processing tool.
type Name string

const (
	PDFMerge     Name = "pdf_merge"
	PDFSplit     Name = "pdf_split"
	PDFCompress  Name = "pdf_compress"
	PDFToWord    Name = "pdf_to_word"
	WordToPDF    Name = "word_to_pdf"
	PDFToImages  Name = "pdf_to_images"
	ImagesToPDF  Name = "images_to_pdf"
	ImageConvert Name = "image_convert"
)

// Spec describes a tool's input contract and its catalog metadata.
type Spec struct {
	Name        Name
	DisplayName string
	Description string
	Category    string
	MinInputs   int
	MaxInputs   int
	InputTypes  []models.FileType
}

// ValidateInputCount checks n against the tool's accepted input range.
func (s Spec) ValidateInputCount(n int) error {
	if n < s.MinInputs || n > s.MaxInputs {
		if s.MinInputs == s.MaxInputs {
			return fmt.Errorf("%s requires exactly %d input file(s), got %d", s.Name, s.MinInputs, n)
		}
		return fmt.Errorf("%s requires between %d and %d input files, got %d", s.Name, s.MinInputs, s.MaxInputs, n)
	}
	return nil
}

// AcceptsType reports whether the tool takes input files of type t.
func (s Spec) AcceptsType(t models.FileType) bool {
	for _, ok := range s.InputTypes {
		if t == ok {
			return true
		}
	}
	return false
}

var catalog = []Spec{
	{
		Name:        PDFMerge,
		DisplayName: "Merge PDFs",
		Description: "Combine multiple PDF files into one",
		Category:    "pdf",
		MinInputs:   2,
		MaxInputs:   50,
		InputTypes:  []models.FileType{models.FileTypePDF},
	},
	{
		Name:        PDFSplit,
		DisplayName: "Split PDF",
		Description: "Split a PDF into multiple files",
		Category:    "pdf",
		MinInputs:   1,
		MaxInputs:   1,
		InputTypes:  []models.FileType{models.FileTypePDF},
	},
	{
		Name:        PDFCompress,
		DisplayName: "Compress PDF",
		Description: "Reduce PDF file size",
		Category:    "pdf",
		MinInputs:   1,
		MaxInputs:   1,
		InputTypes:  []models.FileType{models.FileTypePDF},
	},
	{
		Name:        PDFToWord,
		DisplayName: "PDF to Word",
		Description: "Convert PDF to Word document",
		Category:    "conversion",
		MinInputs:   1,
		MaxInputs:   1,
		InputTypes:  []models.FileType{models.FileTypePDF},
	},
	{
		Name:        WordToPDF,
		DisplayName: "Word to PDF",
		Description: "Convert Word document to PDF",
		Category:    "conversion",
		MinInputs:   1,
		MaxInputs:   1,
		InputTypes:  []models.FileType{models.FileTypeWord},
	},
	{
		Name:        PDFToImages,
		DisplayName: "PDF to Images",
		Description: "Convert PDF pages to images",
		Category:    "conversion",
		MinInputs:   1,
		MaxInputs:   1,
		InputTypes:  []models.FileType{models.FileTypePDF},
	},
	{
		Name:        ImagesToPDF,
		DisplayName: "Images to PDF",
		Description: "Convert images to PDF",
		Category:    "conversion",
		MinInputs:   1,
		MaxInputs:   50,
		InputTypes:  []models.FileType{models.FileTypeImage},
	},
	{
		Name:        ImageConvert,
		DisplayName: "Convert Image",
		Description: "Convert image format and resize",
		Category:    "image",
		MinInputs:   1,
		MaxInputs:   1,
		InputTypes:  []models.FileType{models.FileTypeImage},
	},
}

var byName = func() map[Name]Spec {
	m := make(map[Name]Spec, len(catalog))
	for _, s := range catalog {
		m[s.Name] = s
	}
	return m
}()

// Lookup returns the spec for a tool name.
func Lookup(name Name) (Spec, bool) {
	s, ok := byName[name]
	return s, ok
}

// All returns the tool catalog in display order.
func All() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// Params is the tool-specific parameter set carried on a job. Validate
// fills in defaults and then checks field constraints, so a validated
// value is ready for execution.
type Params interface {
	Tool() Name
	Validate() error
}

// Encode marshals validated params for storage on the job row.
func Encode(p Params) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding %s params: %w", p.Tool(), err)
	}
	return raw, nil
}

// Decode reconstructs and validates the typed params for a tool from
// the JSON stored on the job row. Empty input yields default params.
func Decode(tool Name, raw []byte) (Params, error) {
	var p Params
	switch tool {
	case PDFMerge:
		p = &MergeParams{}
	case PDFSplit:
		p = &SplitParams{}
	case PDFCompress:
		p = &CompressParams{}
	case PDFToWord:
		p = &PDFToWordParams{}
	case WordToPDF:
		p = &WordToPDFParams{}
	case PDFToImages:
		p = &PDFToImagesParams{}
	case ImagesToPDF:
		p = &ImagesToPDFParams{}
	case ImageConvert:
		p = &ImageConvertParams{}
	default:
		return nil, fmt.Errorf("unknown tool %q", tool)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", tool, err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
