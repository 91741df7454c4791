package sensor

import "dimctl/internal/errors"

const (
	ErrBusUnavailable = errors.ErrorCode("sensor_bus_unavailable")
	ErrIdleQuery      = errors.ErrorCode("sensor_idle_query_failed")
	ErrMediaQuery     = errors.ErrorCode("sensor_media_query_failed")
)
