package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const copyBufferSize = 1024 * 1024

// CopyFile duplicates src into dst. It first tries an atomic copy (kernel
// assisted where available, staged in dst+".part" and renamed into place)
// and falls back to a plain streamed copy when that fails. The source is
// never modified.
func CopyFile(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("copy source unavailable: %w", err)
	}

	atomicErr := copyAtomic(src, dst)
	if atomicErr == nil {
		return nil
	}
	if err := copyStreamed(src, dst); err != nil {
		return fmt.Errorf("copy failed: %w", errors.Join(atomicErr, err))
	}
	return nil
}

func copyAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	part := dst + ".part"
	out, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	// *os.File.ReadFrom uses copy_file_range/sendfile when the platform allows.
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		os.Remove(part)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(part)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return err
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return err
	}
	return nil
}

// copyStreamed copies through a userspace buffer, writing dst directly.
func copyStreamed(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	buf := make([]byte, copyBufferSize)
	// onlyWriter hides ReadFrom so io.CopyBuffer really uses buf.
	if _, err := io.CopyBuffer(onlyWriter{out}, onlyReader{in}, buf); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type onlyWriter struct{ io.Writer }

type onlyReader struct{ io.Reader }
