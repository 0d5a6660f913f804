package chat

import (
	"github.com/rs/zerolog"

	"messenger/internal/pkg/logx"
)

const (
	// MaxContentBytes is the maximum size in bytes of a message's text.
	MaxContentBytes = 5000

	// MaxAttachmentsCount is the maximum number of attachments referenced by one message.
	MaxAttachmentsCount = 10

	// MaxTitleLength is the maximum length in characters of a group chat title.
	MaxTitleLength = 100

	// MaxChatsPerPage caps the page size of the chat list.
	MaxChatsPerPage = 20

	// MaxMessagesPerPage caps the page size of chat history.
	MaxMessagesPerPage = 70
)

// ServiceDeps are the collaborators of a Service. Signer may be nil.
type ServiceDeps struct {
	Store       Store
	Users       UserDirectory
	Attachments AttachmentService
	Signer      URLSigner
}

// Service implements the chat and message operations of the messenger core.
type Service struct {
	store       Store
	resolver    *Resolver
	users       UserDirectory
	attachments AttachmentService
	signer      URLSigner

	logger zerolog.Logger
}

// NewService constructs a Service.
func NewService(deps ServiceDeps) *Service {
	return &Service{
		store:       deps.Store,
		resolver:    NewResolver(deps.Store),
		users:       deps.Users,
		attachments: deps.Attachments,
		signer:      deps.Signer,
		logger:      logx.Component("ChatService"),
	}
}

// Resolver returns the resolver used by the service.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}
