package validation

import (
	"bytes"
	"errors"
	"testing"
)

type memFile struct {
	*bytes.Reader
}

func (m *memFile) Close() error { return nil }

func newMemFile(data []byte) *memFile {
	return &memFile{Reader: bytes.NewReader(data)}
}

func mp4Header() []byte {
	b := make([]byte, 32)
	copy(b[4:], "ftypisom")
	return b
}

func aviHeader() []byte {
	b := make([]byte, 32)
	copy(b, "RIFF")
	copy(b[8:], "AVI ")
	return b
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want FileType
	}{
		{"mp4", mp4Header(), FileTypeMP4},
		{"matroska", append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, 16)...), FileTypeMatroska},
		{"avi", aviHeader(), FileTypeAVI},
		{"png", append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 16)...), FileTypePNG},
		{"jpeg", append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 16)...), FileTypeJPEG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemFile(tt.data)
			got, err := DetectFileType(f)
			if err != nil {
				t.Fatalf("DetectFileType: %v", err)
			}
			if got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
			if pos, _ := f.Seek(0, 1); pos != 0 {
				t.Errorf("reader left at %d, want rewound to 0", pos)
			}
		})
	}
}

func TestDetectFileTypeUnknown(t *testing.T) {
	if _, err := DetectFileType(newMemFile([]byte("plain text, not a container"))); !errors.Is(err, ErrInvalidFileType) {
		t.Fatalf("err = %v, want ErrInvalidFileType", err)
	}
}

func TestAllowedTypes(t *testing.T) {
	if !IsAllowedVideoType(FileTypeMP4) || !IsAllowedVideoType(FileTypeMatroska) || !IsAllowedVideoType(FileTypeAVI) {
		t.Error("video containers should be allowed")
	}
	if IsAllowedVideoType(FileTypePNG) {
		t.Error("png is not a video")
	}
	if !IsAllowedImageType(FileTypePNG) || !IsAllowedImageType(FileTypeJPEG) {
		t.Error("watermark image types should be allowed")
	}
	if IsAllowedImageType(FileTypeMP4) {
		t.Error("mp4 is not a watermark image")
	}
}
