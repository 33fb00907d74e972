package reporter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"syscall"

	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// OpenOutput returns standard output for "" or "-", otherwise it creates
// (or truncates) the named file
func OpenOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, wrapWriteError(err, path)
	}
	return file, nil
}

// Emit runs render against w, logging the attempt and translating write
// failures into application errors
func (rg *ReportGenerator) Emit(w io.Writer, render func(io.Writer) error) error {
	if w == nil {
		return apperrors.ValidationError(apperrors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}

	log := logger.GetGlobalLogger().WithComponent("reporter").WithFields(logger.Fields{
		"format": rg.config.Format,
		"output": writerDescription(w),
	})
	log.Debug("Rendering report")

	if err := render(w); err != nil {
		wrapped := wrapWriteError(err, writerDescription(w))
		log.WithError(wrapped).Error("Report generation failed")
		return wrapped
	}
	return nil
}

func wrapWriteError(err error, target string) error {
	if rerr, ok := apperrors.AsReconcilerError(err); ok {
		return rerr
	}
	switch {
	case errors.Is(err, fs.ErrPermission):
		return apperrors.FileError(apperrors.CodeFilePermission, target, err)
	case errors.Is(err, fs.ErrNotExist):
		return apperrors.FileError(apperrors.CodeFileNotFound, target, err)
	case isSpaceError(err):
		return apperrors.FileError(apperrors.CodeFilePermission, target, err).
			WithSuggestion("Free up disk space or write the report elsewhere")
	}
	return apperrors.InternalError("report_generation", err).
		WithSuggestion("Check the output destination and report format settings")
}

func writerDescription(w io.Writer) string {
	switch v := w.(type) {
	case *os.File:
		return "file:" + v.Name()
	case nopCloser:
		return writerDescription(v.Writer)
	default:
		return fmt.Sprintf("writer:%T", w)
	}
}

func isSpaceError(err error) bool {
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "disk full")
}
