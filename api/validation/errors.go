package validation

import "errors"

var (
	ErrInvalidFileType   = errors.New("invalid file type")
	ErrFileTooLarge      = errors.New("file size exceeds the upload limit")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
