/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrInvalidJSONFormat indicates that an event payload is not valid JSON for its event.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that a payload contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnknownEvent indicates that the client sent an event name no handler is registered for.
	ErrUnknownEvent = 1008
)

// 2xxx: Chat and Message Business Logic Errors
const (
	// ErrMessageContentTooLong indicates that the user's message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates a message with neither text nor attachments.
	ErrMessageEmpty = 2202

	// ErrAttachmentCountInvalid indicates that too many attachments were referenced by one message.
	ErrAttachmentCountInvalid = 2203

	// ErrNoAccess indicates that the chat exists but the caller is not one of its participants.
	ErrNoAccess = 2301

	// ErrChatNotFound indicates that an operation requires an existing chat and none was resolved.
	ErrChatNotFound = 2302

	// ErrCounterpartNotFound indicates that the counterpart user of a direct chat does not exist.
	ErrCounterpartNotFound = 2303

	// ErrInvalidGroupChat indicates an invalid title or participant list for a group chat.
	ErrInvalidGroupChat = 2304
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates a missing, malformed or rejected access token.
	ErrUnauthorized = 3005

	// ErrInvalidStatus indicates a presence status outside the supported set.
	ErrInvalidStatus = 3006
)

// 4xxx: Collaborator Errors
const (
	// ErrUpstreamUnavailable indicates that a collaborator call failed, timed out or returned nothing.
	ErrUpstreamUnavailable = 4001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
