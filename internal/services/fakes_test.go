package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"fileforge/internal/models"
	"fileforge/internal/queue"
	"fileforge/internal/storage"
)

// The fakes mirror the repository contracts, including the owner
// visibility rules, so the services are tested against the same
// behavior the real repositories provide.

type fakeUsers struct {
	byID      map[uuid.UUID]*models.User
	createErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, other := range f.byID {
		if other.Email == u.Email || other.Username == u.Username {
			return storage.ErrDuplicate
		}
	}
	u.IsActive = true
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
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
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	u, ok := f.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.LastLoginAt = &at
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

type fakeFileStore struct {
	files     map[uuid.UUID]*models.File
	downloads map[uuid.UUID]int
	createErr error
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{
		files:     make(map[uuid.UUID]*models.File),
		downloads: make(map[uuid.UUID]int),
	}
}

func (f *fakeFileStore) Create(_ context.Context, file *models.File) error {
	if f.createErr != nil {
		return f.createErr
	}
	file.CreatedAt = time.Now()
	file.UpdatedAt = file.CreatedAt
	cp := *file
	f.files[file.ID] = &cp
	return nil
}

func (f *fakeFileStore) visible(id uuid.UUID, owner models.Owner, now time.Time) (*models.File, bool) {
	file, ok := f.files[id]
	if !ok || !file.Owner().Equal(owner) || !file.Available(now) {
		return nil, false
	}
	return file, true
}

func (f *fakeFileStore) GetForOwner(_ context.Context, id uuid.UUID, owner models.Owner, now time.Time) (*models.File, error) {
	file, ok := f.visible(id, owner, now)
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *file
	return &cp, nil
}

func (f *fakeFileStore) GetManyForOwner(_ context.Context, ids []uuid.UUID, owner models.Owner, now time.Time) ([]*models.File, error) {
	out := make([]*models.File, 0, len(ids))
	for _, id := range ids {
		file, ok := f.visible(id, owner, now)
		if !ok {
			return nil, fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
		}
		cp := *file
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeFileStore) RecordDownload(_ context.Context, id uuid.UUID) error {
	f.downloads[id]++
	return nil
}

func (f *fakeFileStore) MarkDeleted(_ context.Context, id uuid.UUID, owner models.Owner) (bool, error) {
	file, ok := f.files[id]
	if !ok || !file.Owner().Equal(owner) || file.IsDeleted {
		return false, nil
	}
	file.IsDeleted = true
	return true, nil
}

func (f *fakeFileStore) Stats(_ context.Context, owner models.Owner, now time.Time) (int, int64, error) {
	count := 0
	var bytes int64
	for _, file := range f.files {
		if file.Owner().Equal(owner) && file.Available(now) {
			count++
			bytes += file.FileSize
		}
	}
	return count, bytes, nil
}

type fakeJobStore struct {
	jobs      map[uuid.UUID]*models.Job
	createErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (f *fakeJobStore) Create(_ context.Context, j *models.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	j.CreatedAt = time.Now()
	j.UpdatedAt = j.CreatedAt
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobStore) GetForOwner(_ context.Context, id uuid.UUID, owner models.Owner) (*models.Job, error) {
	j, ok := f.jobs[id]
	if !ok || !j.Owner().Equal(owner) {
		return nil, storage.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobStore) ListForOwner(_ context.Context, owner models.Owner, limit, offset int) ([]*models.Job, int, error) {
	var mine []*models.Job
	for _, j := range f.jobs {
		if j.Owner().Equal(owner) {
			cp := *j
			mine = append(mine, &cp)
		}
	}
	sort.Slice(mine, func(a, b int) bool { return mine[a].CreatedAt.After(mine[b].CreatedAt) })

	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

func (f *fakeJobStore) CountByStatus(_ context.Context, owner models.Owner) (map[models.Status]int, error) {
	out := make(map[models.Status]int)
	for _, j := range f.jobs {
		if j.Owner().Equal(owner) {
			out[j.Status]++
		}
	}
	return out, nil
}

func (f *fakeJobStore) Cancel(_ context.Context, id uuid.UUID, owner models.Owner) (bool, error) {
	j, ok := f.jobs[id]
	if !ok || !j.Owner().Equal(owner) || !j.Status.Cancellable() {
		return false, nil
	}
	j.Status = models.StatusCancelled
	return true, nil
}

type fakeProducer struct {
	enqueued []queue.Message
	err      error
}

func (f *fakeProducer) Enqueue(_ context.Context, msg queue.Message) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, msg)
	return nil
}

func (f *fakeProducer) Close() error { return nil }
