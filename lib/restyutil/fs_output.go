package restyutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FilesystemOutput writes instrumentation dumps and diagnostic captures as
// files inside a single directory.
type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return FilesystemOutput{}, fmt.Errorf("create output directory: %w", err)
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Directory() string {
	return o.directory
}

// Write implements InstrumentOutput, failures are logged and swallowed.
func (o FilesystemOutput) Write(id string, contents string) {
	err := o.WriteFile(id+".txt", []byte(contents))
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

func (o FilesystemOutput) WriteFile(name string, data []byte) error {
	return os.WriteFile(filepath.Join(o.directory, filepath.Base(name)), data, 0600)
}
