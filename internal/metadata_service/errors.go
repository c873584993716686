package metadata_service

import "errors"

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrInvalidFile       = errors.New("invalid file metadata")
	ErrInvalidChunkOrder = errors.New("invalid chunk order")
)
