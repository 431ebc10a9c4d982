package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"fileforge/internal/models"
	"fileforge/internal/utils"
)

// UploadFiles accepts one or more files in the multipart "files" field
// and stores each of them for the caller. Files already stored stay
// stored when a later one in the batch is rejected.
func (h *Handler) UploadFiles(c *fiber.Ctx) error {
	owner := ctxOwner(c)

	form, err := c.MultipartForm()
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Expected multipart form data")
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "No files provided in the 'files' field")
	}

	stored := make([]*models.File, 0, len(uploads))
	for _, fh := range uploads {
		src, err := fh.Open()
		if err != nil {
			return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Could not read uploaded file %q", fh.Filename))
		}
		f, err := h.Files.Upload(c.Context(), owner, fh.Filename, src, fh.Size)
		src.Close()
		if err != nil {
			return h.respondServiceError(c, err)
		}
		stored = append(stored, f)
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"files": stored,
		"count": len(stored),
	})
}

// GetFile returns file metadata.
func (h *Handler) GetFile(c *fiber.Ctx) error {
	fileID, err := uuid.Parse(c.Params("fileId"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid file ID format")
	}

	f, err := h.Files.Get(c.Context(), fileID, ctxOwner(c))
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, f)
}

// DownloadFile streams the file content as an attachment.
func (h *Handler) DownloadFile(c *fiber.Ctx) error {
	fileID, err := uuid.Parse(c.Params("fileId"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid file ID format")
	}

	f, rc, err := h.Files.Download(c.Context(), fileID, ctxOwner(c))
	if err != nil {
		return h.respondServiceError(c, err)
	}

	// octet-stream forces a download instead of inline rendering of
	// user-supplied content.
	c.Set(fiber.HeaderContentType, "application/octet-stream")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", f.OriginalFilename))
	c.Set(fiber.HeaderContentLength, fmt.Sprintf("%d", f.FileSize))
	return c.SendStream(rc, int(f.FileSize))
}

// DeleteFile tombstones a file.
func (h *Handler) DeleteFile(c *fiber.Ctx) error {
	fileID, err := uuid.Parse(c.Params("fileId"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid file ID format")
	}

	if err := h.Files.Delete(c.Context(), fileID, ctxOwner(c)); err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"message": "File deleted successfully",
	})
}
