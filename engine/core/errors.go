package core

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrSurfaceOutOfDate = errors.New("presentation surface out of date")
	ErrAllocationFailed = errors.New("device allocation failed")
	ErrFenceTimeout     = errors.New("fence wait timed out")
	ErrDeviceLost       = errors.New("device lost")
	ErrInvalidHandle    = errors.New("invalid or stale handle")
	ErrUnknown          = errors.New("unknown")
)

// Thin aliases so callers do not need to import the errors package next to core.

func Newf(format string, args ...interface{}) error {
	return errors.NewWithDepthf(1, format, args...)
}

func Wrap(err error, msg string) error {
	return errors.WrapWithDepth(1, err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.WrapWithDepthf(1, err, format, args...)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// Mark tags err so that Is(err, reference) holds while keeping its message.
func Mark(err error, reference error) error {
	return errors.Mark(err, reference)
}
