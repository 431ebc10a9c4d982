package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryEnqueueDeliver(t *testing.T) {
	q := NewMemory(4)
	defer q.Close()

	want := uuid.New()
	if err := q.Enqueue(context.Background(), Message{JobID: want}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan uuid.UUID, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx, func(ctx context.Context, msg Message) error {
			got <- msg.JobID
			return nil
		})
	}()

	select {
	case id := <-got:
		if id != want {
			t.Errorf("delivered job id = %s, want %s", id, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	cancel()
	wg.Wait()
}

func TestMemoryEnqueueFull(t *testing.T) {
	q := NewMemory(1)
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, Message{JobID: uuid.New()}); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, Message{JobID: uuid.New()}); err == nil {
		t.Error("second Enqueue on full queue: want error, got nil")
	}
}

func TestMemoryEnqueueClosed(t *testing.T) {
	q := NewMemory(1)
	q.Close()

	if err := q.Enqueue(context.Background(), Message{JobID: uuid.New()}); err == nil {
		t.Error("Enqueue after Close: want error, got nil")
	}
}

func TestMemoryRedeliversOnHandlerError(t *testing.T) {
	q := NewMemory(4)
	defer q.Close()

	id := uuid.New()
	if err := q.Enqueue(context.Background(), Message{JobID: id}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 8)
	count := 0

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx, func(ctx context.Context, msg Message) error {
			count++
			attempts <- count
			if count == 1 {
				return context.DeadlineExceeded // any error triggers requeue
			}
			return nil
		})
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-attempts:
			if n >= 2 {
				cancel()
				wg.Wait()
				return
			}
		case <-deadline:
			t.Fatal("message was not redelivered after handler error")
		}
	}
}
