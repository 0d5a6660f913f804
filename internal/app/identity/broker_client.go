package identity

import (
	"context"
	"fmt"

	"messenger/internal/app/user"
	"messenger/internal/pkg/auth/jwt"
	"messenger/internal/pkg/errs"
)

// Caller performs one broker request/reply exchange.
type Caller interface {
	Call(ctx context.Context, topic, cmd string, req, resp any) error
}

// BrokerClient is the Identity collaborator reached over the broker.
type BrokerClient struct {
	caller     Caller
	topic      string
	decodeOnly bool
}

var _ Service = (*BrokerClient)(nil)

// NewBrokerClient returns a client sending requests to topic. With decodeOnly the service is
// asked to decode tokens instead of verifying them.
func NewBrokerClient(caller Caller, topic string, decodeOnly bool) *BrokerClient {
	return &BrokerClient{caller: caller, topic: topic, decodeOnly: decodeOnly}
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (c *BrokerClient) Authenticate(ctx context.Context, token string) (int64, error) {
	cmd := CmdVerifyAccessToken
	if c.decodeOnly {
		cmd = CmdDecodeAccessToken
	}

	var payload *jwt.Payload
	if err := c.caller.Call(ctx, c.topic, cmd, tokenRequest{Token: token}, &payload); err != nil {
		return 0, authError(err)
	}
	if payload == nil || payload.User == nil || payload.User.ID == 0 {
		return 0, errs.NewError(errs.ErrUnauthorized)
	}
	return payload.User.ID, nil
}

type userRequest struct {
	ID int64 `json:"id"`
}

func (c *BrokerClient) UserByID(ctx context.Context, userID int64) (*user.User, error) {
	var u *user.User
	if err := c.caller.Call(ctx, c.topic, CmdGetUserByID, userRequest{ID: userID}, &u); err != nil {
		return nil, fmt.Errorf("identity: %s %d: %w", CmdGetUserByID, userID, err)
	}
	return u, nil
}

type friendsRequest struct {
	UserID int64 `json:"userId"`
}

func (c *BrokerClient) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	var requests []FriendRequest
	if err := c.caller.Call(ctx, c.topic, CmdGetFriendRequests, friendsRequest{UserID: userID}, &requests); err != nil {
		return nil, fmt.Errorf("identity: %s %d: %w", CmdGetFriendRequests, userID, err)
	}
	return AcceptedCounterparts(userID, requests), nil
}
