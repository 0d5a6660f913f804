/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses, realtime error frames and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:      {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrInvalidJSONFormat:  {Code: ErrInvalidJSONFormat, Message: "Unsupported request format."},
	ErrExtraContentInBody: {Code: ErrExtraContentInBody, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:  {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnknownEvent:       {Code: ErrUnknownEvent, Message: "Unsupported event %q."},

	// 2xxx: Chat and Message Business Logic Errors
	ErrMessageContentTooLong:  {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrMessageEmpty:           {Code: ErrMessageEmpty, Message: "Message must contain text or attachments."},
	ErrAttachmentCountInvalid: {Code: ErrAttachmentCountInvalid, Message: "A message can carry at most %d attachments."},
	ErrNoAccess:               {Code: ErrNoAccess, Message: "You don't have access to this chat.", Status: http.StatusForbidden},
	ErrChatNotFound:           {Code: ErrChatNotFound, Message: "Chat not found.", Status: http.StatusNotFound},
	ErrCounterpartNotFound:    {Code: ErrCounterpartNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrInvalidGroupChat:       {Code: ErrInvalidGroupChat, Message: "A group chat needs a title and at least one other participant."},

	// 3xxx: User, Session, and Security Errors
	ErrUnauthorized:  {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrInvalidStatus: {Code: ErrInvalidStatus, Message: "Unknown status."},

	// 4xxx: Collaborator Errors
	ErrUpstreamUnavailable: {Code: ErrUpstreamUnavailable, Message: "Service temporarily unavailable. Please try again.", Status: http.StatusBadGateway},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
