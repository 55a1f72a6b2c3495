package usagelog

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/errs"
)

// ArchiveName is the download name of an export in the given format.
func ArchiveName(format api.ExportFormat) string {
	if format == api.ExportTarZst {
		return "logsWebpal.tar.zst"
	}
	return "logsWebpal.zip"
}

func ParseFormat(s string) (api.ExportFormat, error) {
	switch api.ExportFormat(s) {
	case "", api.ExportZip:
		return api.ExportZip, nil
	case api.ExportTarZst:
		return api.ExportTarZst, nil
	}
	return "", errs.Validation("unknown export format %q", s)
}

// ExportAll bundles every user's log into one archive.
func (r *Recorder) ExportAll(format api.ExportFormat) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Export(&buf, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Recorder) Export(w io.Writer, format api.ExportFormat) error {
	files, err := r.snapshot()
	if err != nil {
		return err
	}
	switch format {
	case api.ExportZip, "":
		err = writeZip(w, files)
	case api.ExportTarZst:
		err = writeTarZst(w, files)
	default:
		return errs.Validation("unknown export format %q", format)
	}
	if err != nil {
		return errs.Store("write archive", err)
	}
	r.logger.Info("exported logs", slog.Int("files", len(files)), slog.String("format", string(format)))
	return nil
}

func writeZip(w io.Writer, files []logFile) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	for _, f := range files {
		hdr := &zip.FileHeader{
			Name:     f.name,
			Method:   zip.Deflate,
			Modified: time.Unix(f.modTime, 0).UTC(),
		}
		hdr.SetMode(f.mode)
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.name, err)
		}
		if _, err := fw.Write(f.content); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return zw.Close()
}

func writeTarZst(w io.Writer, files []logFile) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)
	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.name,
			Mode:     int64(f.mode),
			Size:     int64(len(f.content)),
			ModTime:  time.Unix(f.modTime, 0).UTC(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			zw.Close()
			return fmt.Errorf("header %s: %w", f.name, err)
		}
		if _, err := tw.Write(f.content); err != nil {
			zw.Close()
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
