package chattest

import (
	"context"
	"strconv"
	"sync"

	"messenger/internal/app/chat"
	"messenger/internal/app/user"
)

// Users is a chat.UserDirectory backed by a fixed set of users.
type Users struct {
	mu    sync.Mutex
	users map[int64]*user.User
	Err   error
}

// NewUsers returns a directory knowing a user for each id.
func NewUsers(ids ...int64) *Users {
	u := &Users{users: make(map[int64]*user.User)}
	for _, id := range ids {
		u.users[id] = &user.User{ID: id, AccountName: "user" + strconv.FormatInt(id, 10)}
	}
	return u
}

func (u *Users) UserByID(_ context.Context, userID int64) (*user.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.Err != nil {
		return nil, u.Err
	}
	found, ok := u.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

// Attachments is a chat.AttachmentService that accepts every id unless Err is set.
type Attachments struct {
	mu        sync.Mutex
	Err       error
	Confirmed []chat.ConfirmAttachmentsParams
	Unused    map[int64][]string
}

func (a *Attachments) ConfirmMessageAttachments(_ context.Context, params chat.ConfirmAttachmentsParams) ([]chat.Attachment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Err != nil {
		return nil, a.Err
	}
	a.Confirmed = append(a.Confirmed, params)

	out := make([]chat.Attachment, 0, len(params.AttachmentIDs))
	for _, id := range params.AttachmentIDs {
		out = append(out, chat.Attachment{ID: id, FileKey: "files/" + id, FileName: id + ".png", MimeType: "image/png", FileSize: 1})
	}
	return out, nil
}

func (a *Attachments) DeleteUnusedFiles(_ context.Context, userID int64, attachmentIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Unused == nil {
		a.Unused = make(map[int64][]string)
	}
	a.Unused[userID] = append(a.Unused[userID], attachmentIDs...)
	return nil
}

// UnusedFiles returns the ids reported for userID.
func (a *Attachments) UnusedFiles(userID int64) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.Unused[userID]...)
}
