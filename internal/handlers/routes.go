package handlers

import (
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"fileforge/internal/auth"
	"fileforge/internal/middleware"
)

// RegisterRoutes mounts the full HTTP surface on app. rdb may be nil,
// which disables rate limiting.
func RegisterRoutes(app *fiber.App, h *Handler, tokens *auth.Manager, rdb *redis.Client, ratePerMinute int) {
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.RequestLogger(h.Log))

	app.Get("/health", h.Health)

	authed := middleware.Authenticate(tokens)
	userOnly := middleware.RequireUser()
	limited := middleware.RateLimit(h.Log, rdb, ratePerMinute)

	apiV1 := app.Group("/api/v1")

	authGroup := apiV1.Group("/auth")
	authGroup.Post("/register", h.Register)
	authGroup.Post("/login", h.Login)
	authGroup.Post("/refresh", h.Refresh)
	authGroup.Get("/me", authed, userOnly, h.Me)
	authGroup.Post("/logout", authed, h.Logout)
	authGroup.Post("/guest-token", h.GuestToken)

	users := apiV1.Group("/users", authed, userOnly)
	users.Get("/dashboard", h.Dashboard)
	users.Get("/profile", h.GetProfile)
	users.Put("/profile", h.UpdateProfile)
	users.Delete("/account", h.DeleteAccount)

	files := apiV1.Group("/files", authed)
	files.Post("/upload", limited, h.UploadFiles)
	files.Get("/:fileId", h.GetFile)
	files.Get("/:fileId/download", h.DownloadFile)
	files.Delete("/:fileId", h.DeleteFile)

	toolsGroup := apiV1.Group("/tools")
	toolsGroup.Get("/available", limited, h.ListTools)
	toolsGroup.Post("/pdf/merge", authed, limited, h.MergePDFs)
	toolsGroup.Post("/pdf/split", authed, limited, h.SplitPDF)
	toolsGroup.Post("/pdf/compress", authed, limited, h.CompressPDF)
	toolsGroup.Post("/convert/pdf-to-word", authed, limited, h.PDFToWord)
	toolsGroup.Post("/convert/word-to-pdf", authed, limited, h.WordToPDF)
	toolsGroup.Post("/convert/pdf-to-images", authed, limited, h.PDFToImages)
	toolsGroup.Post("/convert/images-to-pdf", authed, limited, h.ImagesToPDF)
	toolsGroup.Post("/image/convert", authed, limited, h.ConvertImage)

	// /history registers before /:jobId so it is not captured as an id.
	jobs := apiV1.Group("/jobs", authed)
	jobs.Get("/history", h.JobHistory)
	jobs.Get("/:jobId", h.GetJob)
	jobs.Get("/:jobId/status", h.GetJobStatus)
	jobs.Post("/:jobId/cancel", h.CancelJob)
}
