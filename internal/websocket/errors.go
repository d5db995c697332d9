package websocket

import "errors"

var (
	ErrClientNotFound   = errors.New("client not registered")
	ErrClientClosed     = errors.New("client connection closed")
	ErrSendBufferFull   = errors.New("client send buffer is full")
	ErrInvalidEnvelope  = errors.New("invalid message envelope")
	ErrClientRegistered = errors.New("client already registered")
)
