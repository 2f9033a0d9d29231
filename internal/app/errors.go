package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrOrganizationTaken = errors.New("organization already exists")
	ErrOrganizationNone  = errors.New("organization not found")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrForbidden         = errors.New("not allowed for this user")

	ErrMessageEmpty          = errors.New("message content is empty")
	ErrChatNotFound          = errors.New("chat not found")
	ErrGenerationUnavailable = errors.New("generation backend unavailable")

	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrDuplicateFilename = errors.New("a document with this filename already exists")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrVectorDelete      = errors.New("delete document vectors failed")
)
