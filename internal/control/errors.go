package control

import "codeberg.org/fancurved/fancurved/internal/errors"

// Control loop errors
const (
	ErrStatusPublish = errors.ErrorCode("control_status_publish_failed")
)
