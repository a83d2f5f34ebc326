package validation

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idPhoto/client/apperrors"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    FileType
		wantErr error
	}{
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, FileTypePNG, nil},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, FileTypeJPEG, nil},
		{"gif", []byte("GIF89a....."), FileTypeGIF, nil},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FileTypeWebP, nil},
		{"text", []byte("hello, world"), "", ErrInvalidFileType},
		{"text starting with BM", []byte("BM notes: buy milk, call the photographer, renew passport"), "", ErrInvalidFileType},
		{"truncated bitmap header", []byte("BM\x00\x00\x00\x00"), "", ErrInvalidFileType},
		{"pdf", []byte("%PDF-1.7 ..."), "", ErrInvalidFileType},
		{"empty", []byte{}, "", ErrEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.content)
			got, err := DetectFileType(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			pos, _ := r.Seek(0, 1)
			assert.Equal(t, int64(0), pos, "reader must be rewound")
		})
	}
}

func TestValidateImage_TooLarge(t *testing.T) {
	r := bytes.NewReader([]byte{0xFF, 0xD8, 0xFF})

	_, err := ValidateImage(r, MaxFileSize+1)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestValidateImage_ExactLimitAccepted(t *testing.T) {
	r := bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xE0})

	fileType, err := ValidateImage(r, MaxFileSize)

	require.NoError(t, err)
	assert.Equal(t, FileTypeJPEG, fileType)
}

func TestValidateImage_NotAnImage(t *testing.T) {
	r := bytes.NewReader([]byte("name,age\nbob,42\n"))

	_, err := ValidateImage(r, 16)

	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.ErrorIs(t, err, ErrInvalidFileType)
}

func TestDetectFileType_Bitmap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4)), imaging.BMP))

	got, err := DetectFileType(bytes.NewReader(buf.Bytes()))

	require.NoError(t, err)
	assert.Equal(t, FileTypeBMP, got)
}
