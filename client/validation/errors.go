package validation

import "errors"

var (
	ErrInvalidFileType = errors.New("please upload an image file")
	ErrFileTooLarge    = errors.New("file size must not exceed 5MB")
	ErrEmptyFile       = errors.New("file is empty")
)
