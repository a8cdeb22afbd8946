package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Navigation and Presence Errors
	ErrRouteUnknown:   {Code: ErrRouteUnknown, Message: "Page not found.", Status: http.StatusNotFound},
	ErrRoomDeleted:    {Code: ErrRoomDeleted, Message: "This room has been deleted."},
	ErrInvalidTopicID: {Code: ErrInvalidTopicID, Message: "Invalid room or user id.", Status: http.StatusBadRequest},

	// 3xxx: User, Session, and Security Errors
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect username or password.", Status: http.StatusUnauthorized},
	ErrSessionKicked:      {Code: ErrSessionKicked, Message: "You have been removed from the room."},
	ErrSessionStale:       {Code: ErrSessionStale, Message: "Your session has expired. Please sign in again.", Status: http.StatusUnauthorized},
	ErrTokenMalformed:     {Code: ErrTokenMalformed, Message: "Sign-in failed. Please try again.", Status: http.StatusBadGateway},

	// 4xxx: Upstream Errors
	ErrBackendUnavailable: {Code: ErrBackendUnavailable, Message: "Service is temporarily unavailable.", Status: http.StatusBadGateway},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
