package status

import "codeberg.org/fancurved/fancurved/internal/errors"

const (
	ErrPublishFailed = errors.ErrorCode("status_publish_failed")
	ErrClearFailed   = errors.ErrorCode("status_clear_failed")
)
