/*
Package errs provides custom error types and application-level error code constants.

These error codes identify request, session and upstream failures both inside the gateway
and in the JSON envelope returned to the UI shell.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Navigation and Presence Errors
const (
	// ErrRouteUnknown indicates that the requested route key or path is not in the route table.
	ErrRouteUnknown = 2101

	// ErrRoomDeleted indicates that the room being watched was deleted by its owner.
	ErrRoomDeleted = 2201

	// ErrInvalidTopicID indicates that a room or user id cannot be used in a broker topic.
	ErrInvalidTopicID = 2202
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates that no session is present.
	ErrUnauthorized = 3001

	// ErrInvalidCredentials indicates that the backend rejected the username or password.
	ErrInvalidCredentials = 3002

	// ErrSessionKicked indicates that the current member was removed from the room.
	ErrSessionKicked = 3004

	// ErrSessionStale indicates that the stored token has expired.
	ErrSessionStale = 3005

	// ErrTokenMalformed indicates that the backend issued a token the gateway cannot read.
	ErrTokenMalformed = 3006
)

// 4xxx: Upstream Errors
const (
	// ErrBackendUnavailable indicates that the backend REST API could not be reached or failed.
	ErrBackendUnavailable = 4001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
