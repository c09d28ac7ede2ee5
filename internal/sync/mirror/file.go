package mirror

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// fileSink mirrors record sets into a destination folder on a local or
// mounted filesystem.
type fileSink struct {
	sourcePath string
	destPath   string
}

// NewFileSink creates a folder-to-folder sink.
func NewFileSink(sourcePath, destPath string) Sink {
	return &fileSink{
		sourcePath: sourcePath,
		destPath:   destPath,
	}
}

func (s *fileSink) Describe() string {
	return s.destPath
}

// Validate checks that the destination exists and is a writable directory.
func (s *fileSink) Validate(_ context.Context) error {
	info, err := os.Stat(s.destPath)
	if err != nil {
		return fmt.Errorf("destination %s is not reachable: %w", s.destPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination %s is not a directory", s.destPath)
	}

	// Probe writability; stat alone cannot tell on network mounts.
	probe, err := os.CreateTemp(s.destPath, ".sls-probe-*")
	if err != nil {
		return fmt.Errorf("destination %s is not writable: %w", s.destPath, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return nil
}

func (s *fileSink) Mirror(ctx context.Context, recordSetName string) (*Result, error) {
	srcPath := filepath.Join(s.sourcePath, recordSetName)

	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("record set %s is not readable: %w", recordSetName, err)
	}

	if !info.IsDir() {
		if err := s.copyFile(srcPath, filepath.Join(s.destPath, recordSetName)); err != nil {
			return nil, err
		}
		return &Result{ItemsCopied: 1}, nil
	}

	copied := 0
	err = filepath.WalkDir(srcPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.sourcePath, path)
		if err != nil {
			return err
		}
		if err := s.copyFile(path, filepath.Join(s.destPath, rel)); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mirror record set %s: %w", recordSetName, err)
	}

	return &Result{ItemsCopied: copied}, nil
}

// copyFile copies src to dst byte-for-byte, writing through a temporary file
// and atomic rename so readers at the destination never observe a partial
// copy and repeated mirrors converge on identical output.
func (s *fileSink) copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	// #nosec G304 -- src is constructed from the configured source folder
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", dst, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to flush %s: %w", dst, err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", dst, err)
	}
	return nil
}
