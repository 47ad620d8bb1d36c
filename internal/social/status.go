package social

import "github.com/fitfriends/backend/internal/models"

// FollowStatus is the directional follow state from the observer to the target.
type FollowStatus string

const (
	FollowNone      FollowStatus = "none"
	FollowFollowing FollowStatus = "following"
)

// FriendshipStatus is the friendship state as seen by the observer.
type FriendshipStatus string

const (
	FriendshipNone            FriendshipStatus = "none"
	FriendshipPendingSent     FriendshipStatus = "pending_sent"
	FriendshipPendingReceived FriendshipStatus = "pending_received"
	FriendshipAccepted        FriendshipStatus = "accepted"
)

// friendshipStatusFor derives the observer's view of a stored row.
func friendshipStatusFor(observerID string, row models.Friendship) FriendshipStatus {
	switch {
	case row.Status == models.FriendshipAccepted:
		return FriendshipAccepted
	case row.RequesterID == observerID:
		return FriendshipPendingSent
	default:
		return FriendshipPendingReceived
	}
}
