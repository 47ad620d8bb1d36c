package social

import (
	"context"
	"sync"

	"github.com/fitfriends/backend/internal/auth"
)

// Engine is the part of Service a Relationship drives.
type Engine interface {
	CheckFollow(ctx context.Context, observerID, targetID string) (FollowStatus, error)
	Follow(ctx context.Context, observerID, targetID string) error
	Unfollow(ctx context.Context, observerID, targetID string) error
	CheckFriendship(ctx context.Context, observerID, targetID string) (FriendshipStatus, error)
	SendFriendRequest(ctx context.Context, observerID, targetID string) error
	AcceptFriendRequest(ctx context.Context, observerID, targetID string) error
}

// Relationship tracks the follow and friendship state between the current
// user and one target. Local state only changes after a write succeeds.
type Relationship struct {
	service  Engine
	identity auth.IdentityProvider
	targetID string

	mu         sync.Mutex
	follow     FollowStatus
	friendship FriendshipStatus
}

// NewRelationship binds a tracker to targetID.
func NewRelationship(service Engine, identity auth.IdentityProvider, targetID string) *Relationship {
	return &Relationship{
		service:    service,
		identity:   identity,
		targetID:   targetID,
		follow:     FollowNone,
		friendship: FriendshipNone,
	}
}

func (r *Relationship) observer(ctx context.Context) (string, error) {
	if r.identity == nil {
		return "", ErrNotAuthenticated
	}
	userID, ok := r.identity.CurrentUserID(ctx)
	if !ok {
		return "", ErrNotAuthenticated
	}
	return userID, nil
}

// TargetID returns the user the relationship points at.
func (r *Relationship) TargetID() string {
	return r.targetID
}

// Follow returns the last known follow status.
func (r *Relationship) Follow() FollowStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.follow
}

// Friendship returns the last known friendship status.
func (r *Relationship) Friendship() FriendshipStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.friendship
}

// Load reads both statuses from the store.
func (r *Relationship) Load(ctx context.Context) error {
	observerID, err := r.observer(ctx)
	if err != nil {
		return err
	}

	follow, err := r.service.CheckFollow(ctx, observerID, r.targetID)
	if err != nil {
		return err
	}
	friendship, err := r.service.CheckFriendship(ctx, observerID, r.targetID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.follow = follow
	r.friendship = friendship
	r.mu.Unlock()
	return nil
}

// FollowTarget follows the target.
func (r *Relationship) FollowTarget(ctx context.Context) error {
	observerID, err := r.observer(ctx)
	if err != nil {
		return err
	}
	if err := r.service.Follow(ctx, observerID, r.targetID); err != nil {
		return err
	}
	r.setFollow(FollowFollowing)
	return nil
}

// UnfollowTarget unfollows the target.
func (r *Relationship) UnfollowTarget(ctx context.Context) error {
	observerID, err := r.observer(ctx)
	if err != nil {
		return err
	}
	if err := r.service.Unfollow(ctx, observerID, r.targetID); err != nil {
		return err
	}
	r.setFollow(FollowNone)
	return nil
}

// SendFriendRequest asks the target to become friends.
func (r *Relationship) SendFriendRequest(ctx context.Context) error {
	observerID, err := r.observer(ctx)
	if err != nil {
		return err
	}
	if err := r.service.SendFriendRequest(ctx, observerID, r.targetID); err != nil {
		return err
	}
	r.setFriendship(FriendshipPendingSent)
	return nil
}

// AcceptFriendRequest accepts the target's pending request.
func (r *Relationship) AcceptFriendRequest(ctx context.Context) error {
	observerID, err := r.observer(ctx)
	if err != nil {
		return err
	}
	if err := r.service.AcceptFriendRequest(ctx, observerID, r.targetID); err != nil {
		return err
	}
	r.setFriendship(FriendshipAccepted)
	return nil
}

func (r *Relationship) setFollow(status FollowStatus) {
	r.mu.Lock()
	r.follow = status
	r.mu.Unlock()
}

func (r *Relationship) setFriendship(status FriendshipStatus) {
	r.mu.Lock()
	r.friendship = status
	r.mu.Unlock()
}

var _ Engine = (*Service)(nil)
