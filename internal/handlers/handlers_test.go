package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileforge/internal/auth"
	"fileforge/internal/blob"
	"fileforge/internal/models"
	"fileforge/internal/queue"
	"fileforge/internal/services"
	"fileforge/internal/storage"
)

// In-memory store fakes implementing the service interfaces, mirroring
// the repository visibility rules.

type fakeUsers struct{ byID map[uuid.UUID]*models.User }

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	for _, other := range f.byID {
		if other.Email == u.Email || other.Username == u.Username {
			return storage.ErrDuplicate
		}
	}
	u.IsActive = true
	u.CreatedAt = time.Now()
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, fullName, username *string) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if fullName != nil {
		u.FullName = fullName
	}
	if username != nil {
		u.Username = *username
	}
	return u, nil
}

func (f *fakeUsers) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	if u, ok := f.byID[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (f *fakeUsers) Deactivate(_ context.Context, id uuid.UUID) error {
	u, ok := f.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.IsActive = false
	return nil
}

type fakeFiles struct{ byID map[uuid.UUID]*models.File }

func (f *fakeFiles) Create(_ context.Context, file *models.File) error {
	file.CreatedAt = time.Now()
	f.byID[file.ID] = file
	return nil
}

func (f *fakeFiles) GetForOwner(_ context.Context, id uuid.UUID, owner models.Owner, now time.Time) (*models.File, error) {
	file, ok := f.byID[id]
	if !ok || !file.Owner().Equal(owner) || !file.Available(now) {
		return nil, storage.ErrNotFound
	}
	return file, nil
}

func (f *fakeFiles) GetManyForOwner(ctx context.Context, ids []uuid.UUID, owner models.Owner, now time.Time) ([]*models.File, error) {
	out := make([]*models.File, 0, len(ids))
	for _, id := range ids {
		file, err := f.GetForOwner(ctx, id, owner, now)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", id, err)
		}
		out = append(out, file)
	}
	return out, nil
}

func (f *fakeFiles) RecordDownload(_ context.Context, id uuid.UUID) error { return nil }

func (f *fakeFiles) MarkDeleted(_ context.Context, id uuid.UUID, owner models.Owner) (bool, error) {
	file, ok := f.byID[id]
	if !ok || !file.Owner().Equal(owner) || file.IsDeleted {
		return false, nil
	}
	file.IsDeleted = true
	return true, nil
}

func (f *fakeFiles) Stats(_ context.Context, owner models.Owner, now time.Time) (int, int64, error) {
	count := 0
	var size int64
	for _, file := range f.byID {
		if file.Owner().Equal(owner) && file.Available(now) {
			count++
			size += file.FileSize
		}
	}
	return count, size, nil
}

type fakeJobs struct{ byID map[uuid.UUID]*models.Job }

func (f *fakeJobs) Create(_ context.Context, j *models.Job) error {
	j.CreatedAt = time.Now()
	f.byID[j.ID] = j
	return nil
}

func (f *fakeJobs) GetForOwner(_ context.Context, id uuid.UUID, owner models.Owner) (*models.Job, error) {
	j, ok := f.byID[id]
	if !ok || !j.Owner().Equal(owner) {
		return nil, storage.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobs) ListForOwner(_ context.Context, owner models.Owner, limit, offset int) ([]*models.Job, int, error) {
	var mine []*models.Job
	for _, j := range f.byID {
		if j.Owner().Equal(owner) {
			mine = append(mine, j)
		}
	}
	sort.Slice(mine, func(a, b int) bool { return mine[a].CreatedAt.After(mine[b].CreatedAt) })
	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	if end := offset + limit; end < total {
		mine = mine[offset:end]
	} else {
		mine = mine[offset:]
	}
	return mine, total, nil
}

func (f *fakeJobs) CountByStatus(_ context.Context, owner models.Owner) (map[models.Status]int, error) {
	out := make(map[models.Status]int)
	for _, j := range f.byID {
		if j.Owner().Equal(owner) {
			out[j.Status]++
		}
	}
	return out, nil
}

func (f *fakeJobs) Cancel(_ context.Context, id uuid.UUID, owner models.Owner) (bool, error) {
	j, ok := f.byID[id]
	if !ok || !j.Owner().Equal(owner) || !j.Status.Cancellable() {
		return false, nil
	}
	j.Status = models.StatusCancelled
	return true, nil
}

type fakeProducer struct{ enqueued []queue.Message }

func (f *fakeProducer) Enqueue(_ context.Context, m queue.Message) error {
	f.enqueued = append(f.enqueued, m)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type harness struct {
	app      *fiber.App
	jobs     *fakeJobs
	producer *fakeProducer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	local, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	tokens := auth.NewManager("test-secret", time.Hour, 24*time.Hour)
	users := &fakeUsers{byID: make(map[uuid.UUID]*models.User)}
	files := &fakeFiles{byID: make(map[uuid.UUID]*models.File)}
	jobs := &fakeJobs{byID: make(map[uuid.UUID]*models.Job)}
	producer := &fakeProducer{}

	fileSvc := services.NewFiles(log, files, local, 1<<20, 24*time.Hour)
	h := New(log,
		services.NewAuth(log, users, tokens),
		services.NewUsers(log, users, jobs, files),
		fileSvc,
		services.NewJobs(log, jobs, files, producer, 48*time.Hour),
		nil)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, h, tokens, nil, 0)
	return &harness{app: app, jobs: jobs, producer: producer}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func envelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func dataField(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body := envelope(t, resp)
	require.Equal(t, "success", body["status"], "body: %v", body)
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "data is not an object: %v", body)
	return data
}

func (h *harness) guestToken(t *testing.T) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/v1/auth/guest-token", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := dataField(t, resp)
	token, _ := data["guest_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (h *harness) uploadPDF(t *testing.T, token, filename string) string {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 handler test " + filename))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	data := dataField(t, resp)
	files, ok := data["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, 1)
	id, _ := files[0].(map[string]any)["file_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := envelope(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestGuestUploadAndSubmitFlow(t *testing.T) {
	h := newHarness(t)
	token := h.guestToken(t)

	first := h.uploadPDF(t, token, "a.pdf")
	second := h.uploadPDF(t, token, "b.pdf")

	resp := h.do(t, http.MethodPost, "/api/v1/tools/pdf/merge", token, fiber.Map{
		"files":           []string{first, second},
		"output_filename": "combined.pdf",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	job := dataField(t, resp)
	assert.Equal(t, "pending", job["status"])
	assert.Equal(t, "pdf_merge", job["tool_name"])
	assert.EqualValues(t, 0, job["progress"])
	jobID, _ := job["job_id"].(string)
	require.NotEmpty(t, jobID)
	require.Len(t, h.producer.enqueued, 1)

	// Poll the status projection.
	resp = h.do(t, http.MethodGet, "/api/v1/jobs/"+jobID+"/status", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	status := dataField(t, resp)
	assert.Equal(t, "pending", status["status"])
	_, hasURL := status["result_url"]
	assert.False(t, hasURL, "no result link before completion")
}

func TestSubmitRejectedSynchronously(t *testing.T) {
	h := newHarness(t)
	token := h.guestToken(t)
	only := h.uploadPDF(t, token, "only.pdf")

	resp := h.do(t, http.MethodPost, "/api/v1/tools/pdf/merge", token, fiber.Map{
		"files": []string{only},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := envelope(t, resp)
	assert.Equal(t, "error", body["status"])
	assert.Empty(t, h.jobs.byID, "no job row on synchronous rejection")
	assert.Empty(t, h.producer.enqueued)
}

func TestSubmitRequiresAuth(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodPost, "/api/v1/tools/pdf/merge", "", fiber.Map{
		"files": []string{uuid.NewString(), uuid.NewString()},
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCancelOverHTTP(t *testing.T) {
	h := newHarness(t)
	token := h.guestToken(t)

	first := h.uploadPDF(t, token, "a.pdf")
	second := h.uploadPDF(t, token, "b.pdf")
	resp := h.do(t, http.MethodPost, "/api/v1/tools/pdf/merge", token, fiber.Map{
		"files": []string{first, second},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	jobID, _ := dataField(t, resp)["job_id"].(string)

	resp = h.do(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/cancel", token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Terminal now, second cancel is a client error.
	resp = h.do(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/cancel", token, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Unknown id is a 404, not a 400.
	resp = h.do(t, http.MethodPost, "/api/v1/jobs/"+uuid.NewString()+"/cancel", token, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestJobHistoryRouteNotShadowed(t *testing.T) {
	h := newHarness(t)
	token := h.guestToken(t)

	resp := h.do(t, http.MethodGet, "/api/v1/jobs/history?page=1&page_size=5", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	data := dataField(t, resp)
	assert.EqualValues(t, 0, data["total"])
	assert.EqualValues(t, 5, data["page_size"])
	assert.Equal(t, false, data["has_more"])
}

func TestListTools(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/api/v1/tools/available", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	data := dataField(t, resp)
	toolsList, ok := data["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, toolsList, 8)

	first, _ := toolsList[0].(map[string]any)
	assert.Equal(t, "pdf_merge", first["id"])
	assert.Equal(t, "Merge PDFs", first["name"])
}

func TestRegisterLoginMe(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"email":    "ada@example.com",
		"username": "ada",
		"password": "Secret1234",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	data := dataField(t, resp)
	require.Contains(t, data, "tokens")

	// Weak passwords never reach the service.
	resp = h.do(t, http.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"email":    "bob@example.com",
		"username": "bob",
		"password": "alllowercase",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"email":    "ada@example.com",
		"password": "Secret1234",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data = dataField(t, resp)
	tokens, _ := data["tokens"].(map[string]any)
	access, _ := tokens["access_token"].(string)
	require.NotEmpty(t, access)

	resp = h.do(t, http.MethodGet, "/api/v1/auth/me", access, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	me := dataField(t, resp)
	assert.Equal(t, "ada@example.com", me["email"])

	resp = h.do(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGuestCannotUseAccountRoutes(t *testing.T) {
	h := newHarness(t)
	token := h.guestToken(t)

	resp := h.do(t, http.MethodGet, "/api/v1/users/dashboard", token, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestOwnersCannotSeeEachOthersFiles(t *testing.T) {
	h := newHarness(t)
	alice := h.guestToken(t)
	bob := h.guestToken(t)

	fileID := h.uploadPDF(t, alice, "private.pdf")

	resp := h.do(t, http.MethodGet, "/api/v1/files/"+fileID, bob, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/v1/files/"+fileID, alice, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestDownloadStreamsContent(t *testing.T) {
	h := newHarness(t)
	token := h.guestToken(t)
	fileID := h.uploadPDF(t, token, "dl.pdf")

	resp := h.do(t, http.MethodGet, "/api/v1/files/"+fileID+"/download", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get(fiber.HeaderContentType))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), `filename="dl.pdf"`)

	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(content), "%PDF-1.4")
}
