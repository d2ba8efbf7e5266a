package archive

import "errors"

var (
	ErrInvalidConfig      = errors.New("archive: invalid configuration")
	ErrFailedToLoadConfig = errors.New("archive: failed to load aws config")
	ErrInvalidKey         = errors.New("archive: invalid object key")
	ErrAccessDenied       = errors.New("archive: access denied")
	ErrBucketNotFound     = errors.New("archive: bucket not found")
	ErrServiceUnavailable = errors.New("archive: storage service unavailable")
	ErrFailedToWrite      = errors.New("archive: failed to write object")
)
