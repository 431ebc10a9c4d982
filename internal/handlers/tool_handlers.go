package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"fileforge/internal/tools"
	"fileforge/internal/utils"
)

// Submission bodies. Cardinality and option values are checked by the
// jobs service against the tool registry, so the wire structs only mark
// what must be present at all.

type mergeRequest struct {
	Files          []string `json:"files" validate:"required"`
	OutputFilename string   `json:"output_filename"`
}

type splitRequest struct {
	FileID    string            `json:"file_id" validate:"required"`
	SplitType string            `json:"split_type" validate:"required"`
	Pages     []int             `json:"pages"`
	Ranges    []tools.PageRange `json:"ranges"`
}

type compressRequest struct {
	FileID           string `json:"file_id" validate:"required"`
	CompressionLevel string `json:"compression_level"`
}

type fileOnlyRequest struct {
	FileID string `json:"file_id" validate:"required"`
}

type pdfToImagesRequest struct {
	FileID       string `json:"file_id" validate:"required"`
	OutputFormat string `json:"output_format" validate:"required"`
}

type imageConvertRequest struct {
	FileID              string `json:"file_id" validate:"required"`
	OutputFormat        string `json:"output_format" validate:"required"`
	Quality             int    `json:"quality"`
	Width               *int   `json:"width"`
	Height              *int   `json:"height"`
	MaintainAspectRatio *bool  `json:"maintain_aspect_ratio"`
}

// decodeRequest parses and struct-validates a submission body. On
// failure it writes the 400 itself and reports ok=false.
func decodeRequest(c *fiber.Ctx, payload any) (bool, error) {
	if err := c.BodyParser(payload); err != nil {
		return false, utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse JSON body")
	}
	if err := validate.Struct(payload); err != nil {
		return false, utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), ", "))
	}
	return true, nil
}

// submit runs the shared submission path and renders the created job.
func (h *Handler) submit(c *fiber.Ctx, tool tools.Name, rawIDs []string, params tools.Params) error {
	ids, err := parseFileIDs(rawIDs)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, err.Error())
	}
	job, err := h.Jobs.Submit(c.Context(), ctxOwner(c), tool, ids, params)
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, job)
}

// MergePDFs submits a pdf_merge job.
func (h *Handler) MergePDFs(c *fiber.Ctx) error {
	payload := new(mergeRequest)
	if ok, err := decodeRequest(c, payload); !ok {
		return err
	}
	return h.submit(c, tools.PDFMerge, payload.Files, &tools.MergeParams{
		OutputFilename: payload.OutputFilename,
	})
}

// SplitPDF submits a pdf_split job.
func (h *Handler) SplitPDF(c *fiber.Ctx) error {
	payload := new(splitRequest)
	if ok, err := decodeRequest(c, payload); !ok {
		return err
	}
	return h.submit(c, tools.PDFSplit, []string{payload.FileID}, &tools.SplitParams{
		SplitType: payload.SplitType,
		Pages:     payload.Pages,
		Ranges:    payload.Ranges,
	})
}

// CompressPDF submits a pdf_compress job.
func (h *Handler) CompressPDF(c *fiber.Ctx) error {
	payload := new(compressRequest)
	if ok, err := decodeRequest(c, payload); !ok {
		return err
	}
	return h.submit(c, tools.PDFCompress, []string{payload.FileID}, &tools.CompressParams{
		Level: payload.CompressionLevel,
	})
}

// PDFToWord submits a pdf_to_word job.
func (h *Handler) PDFToWord(c *fiber.Ctx) error {
	payload := new(fileOnlyRequest)
	if ok, err := decodeRequest(c, payload); !ok {
		return err
	}
	return h.submit(c, tools.PDFToWord, []string{payload.FileID}, &tools.PDFToWordParams{})
}

// WordToPDF submits a word_to_pdf job.
func (h *Handler) WordToPDF(c *fiber.Ctx) error {
	payload := new(fileOnlyRequest)
	if ok, err := decodeRequest(c, payload); !ok {
		return err
	}
	return h.submit(c, tools.WordToPDF, []string{payload.FileID}, &tools.WordToPDFParams{})
}

// PDFToImages submits a pdf_to_images job.
func (h *Handler) PDFToImages(c *fiber.Ctx) error {
	payload := new(pdfToImagesRequest)
	if ok, err := decodeRequest(c, payload); !ok {
		return err
	}
	return h.submit(c, tools.PDFToImages, []string{payload.FileID}, &tools.PDFToImagesParams{
		OutputFormat: payload.OutputFormat,
	})
}

// ImagesToPDF submits an images_to_pdf job.
func (h *Handler) ImagesToPDF(c *fiber.Ctx) error {
	payload := new(mergeRequest)
	if ok, err := decodeRequest(c, payload); !ok {
		return err
	}
	return h.submit(c, tools.ImagesToPDF, payload.Files, &tools.ImagesToPDFParams{
		OutputFilename: payload.OutputFilename,
	})
}

// ConvertImage submits an image_convert job.
func (h *Handler) ConvertImage(c *fiber.Ctx) error {
	payload := new(imageConvertRequest)
	if ok, err := decodeRequest(c, payload); !ok {
		return err
	}
	return h.submit(c, tools.ImageConvert, []string{payload.FileID}, &tools.ImageConvertParams{
		OutputFormat:        payload.OutputFormat,
		Quality:             payload.Quality,
		Width:               payload.Width,
		Height:              payload.Height,
		MaintainAspectRatio: payload.MaintainAspectRatio,
	})
}

// ListTools returns the static tool registry.
func (h *Handler) ListTools(c *fiber.Ctx) error {
	specs := tools.All()
	out := make([]fiber.Map, 0, len(specs))
	for _, s := range specs {
		out = append(out, fiber.Map{
			"id":          s.Name,
			"name":        s.DisplayName,
			"description": s.Description,
			"category":    s.Category,
			"min_inputs":  s.MinInputs,
			"max_inputs":  s.MaxInputs,
			"input_types": s.InputTypes,
		})
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"tools": out})
}
