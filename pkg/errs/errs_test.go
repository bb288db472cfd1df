package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"
)

func TestError_IsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", E(ChecksumMismatch, "record.read", nil))

	if !errors.Is(err, ChecksumMismatch) {
		t.Errorf("errors.Is(err, ChecksumMismatch) = false, want true")
	}
	if !errors.Is(err, InvalidFormat) {
		t.Errorf("errors.Is(err, InvalidFormat) = false, want true for corruption kind")
	}
	if errors.Is(err, InvalidPacketSize) {
		t.Errorf("errors.Is(err, InvalidPacketSize) = true, want false")
	}
	if KindOf(err) != ChecksumMismatch {
		t.Errorf("KindOf = %v, want ChecksumMismatch", KindOf(err))
	}
}

func TestError_Message(t *testing.T) {
	err := WithPath(FileNotFound, "storage.open", "/tmp/a.pcap", fs.ErrNotExist)
	want := "storage.open: file not found /tmp/a.pcap: file does not exist"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestFromOS(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not exist", fs.ErrNotExist, FileNotFound},
		{"permission", fs.ErrPermission, InsufficientPermissions},
		{"other", errors.New("disk on fire"), IO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromOS("op", "path", tt.err)
			if KindOf(got) != tt.want {
				t.Errorf("KindOf(FromOS) = %v, want %v", KindOf(got), tt.want)
			}
		})
	}

	if FromOS("op", "path", nil) != nil {
		t.Errorf("FromOS(nil) should be nil")
	}
}

func TestFromOS_KeepsTypedError(t *testing.T) {
	orig := E(InvalidState, "op", nil)
	if got := FromOS("other", "p", orig); got != orig {
		t.Errorf("FromOS rewrapped an *Error: %v", got)
	}
}

func TestFromOSDir(t *testing.T) {
	_, err := os.ReadDir("/definitely/not/here")
	if KindOf(FromOSDir("scan", "/definitely/not/here", err)) != DirectoryNotFound {
		t.Errorf("want DirectoryNotFound")
	}
}

func TestFromNet(t *testing.T) {
	err := FromNet("dispatch.send", "127.0.0.1:9", errors.New("refused"))
	if !errors.Is(err, Network) {
		t.Errorf("FromNet kind = %v, want Network", KindOf(err))
	}
}
