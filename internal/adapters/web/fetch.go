package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"paperflow/internal/application"
)

var pdfMagic = []byte("%PDF-")

// Fetch streams url into a hidden temp file next to dest and renames it into
// place, so a watcher on dest's directory never sees a partial PDF.
func (c *Client) Fetch(ctx context.Context, url, dest string) error {
	resp, err := c.get(ctx, "download", url, nil, nil)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			return &application.NotFoundError{What: "PDF", ID: url}
		}
		return err
	}
	defer resp.Body.Close()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return application.Transient("download", err)
	}
	if !bytes.Equal(head[:n], pdfMagic) {
		return application.Fatal("download", fmt.Errorf("%s did not return a PDF (content-type %q)", url, resp.Header.Get("Content-Type")))
	}
	if _, err := tmp.Write(head); err != nil {
		return err
	}

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return application.Transient("download", err)
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return err
	}
	keep = true

	c.logger.Info("Downloaded paper.", "url", url, "path", dest, "bytes", written+int64(n))
	return nil
}
