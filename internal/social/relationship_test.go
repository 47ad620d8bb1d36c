package social

import (
	"context"
	"errors"
	"testing"

	"github.com/fitfriends/backend/internal/auth"
)

func TestRelationshipTracksState(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	ana := NewRelationship(f.service, auth.StaticIdentity("ana"), "bo")
	bo := NewRelationship(f.service, auth.StaticIdentity("bo"), "ana")

	if err := ana.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if ana.Follow() != FollowNone || ana.Friendship() != FriendshipNone {
		t.Fatalf("unexpected initial state %s/%s", ana.Follow(), ana.Friendship())
	}

	if err := ana.FollowTarget(ctx); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := ana.SendFriendRequest(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ana.Follow() != FollowFollowing || ana.Friendship() != FriendshipPendingSent {
		t.Fatalf("unexpected state after mutations %s/%s", ana.Follow(), ana.Friendship())
	}

	if err := bo.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if bo.Friendship() != FriendshipPendingReceived {
		t.Fatalf("expected pending_received got %s", bo.Friendship())
	}
	if err := bo.AcceptFriendRequest(ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if bo.Friendship() != FriendshipAccepted {
		t.Fatalf("expected accepted got %s", bo.Friendship())
	}

	if err := ana.UnfollowTarget(ctx); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if ana.Follow() != FollowNone {
		t.Fatalf("expected none after unfollow got %s", ana.Follow())
	}
}

func TestRelationshipKeepsStateOnFailure(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	ana := NewRelationship(f.service, auth.StaticIdentity("ana"), "bo")
	if err := ana.FollowTarget(ctx); err != nil {
		t.Fatalf("follow: %v", err)
	}

	fresh := NewRelationship(f.service, auth.StaticIdentity("ana"), "bo")
	if err := fresh.FollowTarget(ctx); err == nil {
		t.Fatal("expected duplicate follow to fail")
	}
	if fresh.Follow() != FollowNone {
		t.Fatalf("state must not change on failure got %s", fresh.Follow())
	}
}

func TestRelationshipWithoutIdentity(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	signedOut := NewRelationship(f.service, auth.StaticIdentity(""), "bo")
	for name, call := range map[string]func(context.Context) error{
		"load":     signedOut.Load,
		"follow":   signedOut.FollowTarget,
		"unfollow": signedOut.UnfollowTarget,
		"request":  signedOut.SendFriendRequest,
		"accept":   signedOut.AcceptFriendRequest,
	} {
		if err := call(ctx); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("%s: expected not authenticated got %v", name, err)
		}
	}
	if f.follows.calls != 0 || f.friendships.Len() != 0 {
		t.Fatal("expected no persistence calls without identity")
	}

	nilIdentity := NewRelationship(f.service, nil, "bo")
	if err := nilIdentity.FollowTarget(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated got %v", err)
	}
}
