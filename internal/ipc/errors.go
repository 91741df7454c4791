package ipc

import "dimctl/internal/errors"

const (
	ErrListenFailed = errors.ErrorCode("ipc_listen_failed")
	ErrDialFailed   = errors.ErrorCode("ipc_dial_failed")
	ErrBadResponse  = errors.ErrorCode("ipc_bad_response")
	ErrDaemon       = errors.ErrorCode("ipc_daemon_error")
)
