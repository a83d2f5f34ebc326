package validation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"strings"

	"idPhoto/client/apperrors"
)

const MaxFileSize = 5 * 1024 * 1024

type FileType string

const (
	FileTypePNG  FileType = "png"
	FileTypeJPEG FileType = "jpeg"
	FileTypeGIF  FileType = "gif"
	FileTypeWebP FileType = "webp"
	FileTypeBMP  FileType = "bmp"
)

var magicBytes = map[FileType][]byte{
	FileTypePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	FileTypeJPEG: {0xFF, 0xD8, 0xFF},
	FileTypeGIF:  {0x47, 0x49, 0x46, 0x38},
}

// bmpHeaderSizes are the DIB header sizes of the known bitmap versions.
var bmpHeaderSizes = map[uint32]bool{12: true, 40: true, 52: true, 56: true, 64: true, 108: true, 124: true}

// isBMP checks more than the two-byte "BM" tag: the DIB header size must be
// a known one and the pixel data must start after both headers.
func isBMP(head []byte) bool {
	if len(head) < 26 || head[0] != 'B' || head[1] != 'M' {
		return false
	}
	dataOffset := binary.LittleEndian.Uint32(head[10:14])
	dibSize := binary.LittleEndian.Uint32(head[14:18])
	return bmpHeaderSizes[dibSize] && dataOffset >= 14+dibSize
}

// DetectFileType sniffs the first bytes of r and rewinds it.
func DetectFileType(r io.ReadSeeker) (FileType, error) {
	buffer := make([]byte, 512)
	n, err := io.ReadFull(r, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrEmptyFile
	}
	head := buffer[:n]

	for fileType, signature := range magicBytes {
		if bytes.HasPrefix(head, signature) {
			return fileType, nil
		}
	}
	if n >= 12 && string(head[0:4]) == "RIFF" && string(head[8:12]) == "WEBP" {
		return FileTypeWebP, nil
	}
	if isBMP(head) {
		return FileTypeBMP, nil
	}

	// DetectContentType also matches bare "BM"; bitmaps were checked above.
	if ct := http.DetectContentType(head); strings.HasPrefix(ct, "image/") && ct != "image/bmp" {
		return FileType(strings.TrimPrefix(ct, "image/")), nil
	}

	return "", ErrInvalidFileType
}

// ValidateImage checks that r holds an image of at most MaxFileSize bytes.
// Failures are returned as validation errors.
func ValidateImage(r io.ReadSeeker, size int64) (FileType, error) {
	if size > MaxFileSize {
		return "", apperrors.Validation(ErrFileTooLarge.Error(), ErrFileTooLarge)
	}

	fileType, err := DetectFileType(r)
	if err != nil {
		if err == ErrInvalidFileType || err == ErrEmptyFile {
			return "", apperrors.Validation(err.Error(), err)
		}
		return "", apperrors.Validation("failed to read file", fmt.Errorf("sniff file type: %w", err))
	}

	return fileType, nil
}
