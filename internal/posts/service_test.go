package posts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/realtime"
	"github.com/fitfriends/backend/internal/repositories"
)

func subscribe(t *testing.T, broker *realtime.MemoryBroker) *realtime.Subscription {
	t.Helper()
	sub, err := broker.Subscribe(context.Background(), Table, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(sub.Close)
	return sub
}

func next(t *testing.T, sub *realtime.Subscription) realtime.Change {
	t.Helper()
	select {
	case change := <-sub.Events():
		return change
	case <-time.After(time.Second):
		t.Fatal("expected a change")
	}
	return realtime.Change{}
}

func TestCreatePublishesInsert(t *testing.T) {
	repo := repositories.NewMemoryPostRepository()
	broker := realtime.NewMemoryBroker(nil, nil)
	defer broker.Close()
	sub := subscribe(t, broker)

	svc := NewService(repo, broker)
	post, err := svc.Create(context.Background(), "u1", Draft{
		ContentType: "meal",
		ContentData: json.RawMessage(`{"calories":420}`),
		Description: "  oats  ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.Visibility != models.VisibilityPublic || post.Description != "oats" || post.Images == nil {
		t.Fatalf("unexpected post %+v", post)
	}

	stored, err := repo.FindByID(context.Background(), post.ID)
	if err != nil || stored.UserID != "u1" {
		t.Fatalf("expected stored post got %+v (%v)", stored, err)
	}

	change := next(t, sub)
	var got models.Post
	if err := change.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if change.Event != realtime.EventInsert || got.ID != post.ID {
		t.Fatalf("unexpected change %+v", change)
	}
}

func TestCreateValidates(t *testing.T) {
	svc := NewService(repositories.NewMemoryPostRepository(), nil)

	cases := []struct {
		name   string
		author string
		draft  Draft
		want   error
	}{
		{"no author", "", Draft{ContentType: "meal"}, ErrNotAuthenticated},
		{"bad type", "u1", Draft{ContentType: "selfie"}, ErrInvalidPost},
		{"bad visibility", "u1", Draft{ContentType: "meal", Visibility: "everyone"}, ErrInvalidPost},
		{"bad data", "u1", Draft{ContentType: "meal", ContentData: json.RawMessage(`{`)}, ErrInvalidPost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.author, tc.draft); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, err)
			}
		})
	}
}

func TestDeletePublishesRemoval(t *testing.T) {
	repo := repositories.NewMemoryPostRepository(models.Post{ID: "p1", UserID: "u1", Visibility: models.VisibilityPublic})
	broker := realtime.NewMemoryBroker(nil, nil)
	defer broker.Close()
	sub := subscribe(t, broker)

	svc := NewService(repo, broker)

	if err := svc.Delete(context.Background(), "u2", "p1"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected not found for another user's post got %v", err)
	}
	if err := svc.Delete(context.Background(), "u1", "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	change := next(t, sub)
	if change.Event != realtime.EventDelete {
		t.Fatalf("expected delete change got %+v", change)
	}
}
