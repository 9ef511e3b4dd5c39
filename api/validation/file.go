package validation

import (
	"bytes"
	"io"
	"mime/multipart"
)

type FileType string

const (
	FileTypeMP4      FileType = "mp4"
	FileTypeMatroska FileType = "matroska"
	FileTypeAVI      FileType = "avi"
	FileTypePNG      FileType = "png"
	FileTypeJPEG     FileType = "jpeg"
)

var magicBytes = map[FileType][]byte{
	FileTypeMatroska: {0x1A, 0x45, 0xDF, 0xA3},
	FileTypePNG:      {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	FileTypeJPEG:     {0xFF, 0xD8, 0xFF},
}

// DetectFileType sniffs the container from the first bytes and rewinds
// the reader. MP4-family files carry "ftyp" at offset 4, AVI is a RIFF
// with an "AVI " form type, the rest are plain prefixes.
func DetectFileType(file multipart.File) (FileType, error) {
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	if _, err := file.Seek(0, 0); err != nil {
		return "", err
	}

	head := buffer[:n]
	if len(head) >= 12 {
		if bytes.Equal(head[4:8], []byte("ftyp")) {
			return FileTypeMP4, nil
		}
		if bytes.HasPrefix(head, []byte("RIFF")) && bytes.Equal(head[8:12], []byte("AVI ")) {
			return FileTypeAVI, nil
		}
	}

	for fileType, signature := range magicBytes {
		if bytes.HasPrefix(head, signature) {
			return fileType, nil
		}
	}

	return "", ErrInvalidFileType
}

func IsAllowedVideoType(fileType FileType) bool {
	switch fileType {
	case FileTypeMP4, FileTypeMatroska, FileTypeAVI:
		return true
	default:
		return false
	}
}

// IsAllowedImageType reports whether the type can serve as a watermark
// image.
func IsAllowedImageType(fileType FileType) bool {
	switch fileType {
	case FileTypePNG, FileTypeJPEG:
		return true
	default:
		return false
	}
}
