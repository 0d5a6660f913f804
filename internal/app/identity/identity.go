/*
Package identity is the client side of the Identity collaborator: token checks, user lookups and
friend lists. Two implementations exist. The broker client talks to the Identity service; the
local client verifies tokens in-process and is meant for development without that service.
*/
package identity

import (
	"context"
	"errors"

	"messenger/internal/app/broker"
	"messenger/internal/app/user"
	"messenger/internal/pkg/errs"
)

// Broker commands served by the Identity service.
const (
	CmdGetUserByID       = "get-user-by-id"
	CmdVerifyAccessToken = "verify-access-token"
	CmdDecodeAccessToken = "decode-access-token"
	CmdGetFriendRequests = "get-friend-requests"
)

// FriendRequestAccepted is the status of a friend request both sides agreed to.
const FriendRequestAccepted = 2

// Service is what the messenger core needs from the Identity collaborator.
type Service interface {
	// Authenticate checks an access token and returns the user id it belongs to.
	Authenticate(ctx context.Context, token string) (int64, error)

	// UserByID returns the user, or nil if it does not exist.
	UserByID(ctx context.Context, userID int64) (*user.User, error)

	// FriendIDs returns the users with an accepted friend request to or from userID.
	FriendIDs(ctx context.Context, userID int64) ([]int64, error)
}

// FriendRequest is one entry of a get-friend-requests reply.
type FriendRequest struct {
	SenderID    int64 `json:"senderId"`
	RecipientID int64 `json:"recipientId"`
	Status      int   `json:"status"`
}

// AcceptedCounterparts returns, for each accepted request involving userID, the other side.
func AcceptedCounterparts(userID int64, requests []FriendRequest) []int64 {
	out := make([]int64, 0, len(requests))
	for _, fr := range requests {
		if fr.Status != FriendRequestAccepted {
			continue
		}
		switch userID {
		case fr.SenderID:
			out = append(out, fr.RecipientID)
		case fr.RecipientID:
			out = append(out, fr.SenderID)
		}
	}
	return out
}

// authError classifies a failed token check: a remote rejection means the token is bad,
// anything else means the Identity service could not answer.
func authError(err error) error {
	var remote *broker.RemoteError
	if errors.As(err, &remote) {
		return errs.Wrap(errs.ErrUnauthorized, err)
	}
	return errs.Wrap(errs.ErrUpstreamUnavailable, err)
}
