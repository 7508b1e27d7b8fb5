package realtime

import "errors"

// Channel lifecycle and send-path errors
var (
	ErrChannelClosed  = errors.New("channel has been torn down")
	ErrNotConnected   = errors.New("channel is not connected")
	ErrSendBufferFull = errors.New("outbound buffer full")
	ErrInvalidURL     = errors.New("invalid server URL")
)
