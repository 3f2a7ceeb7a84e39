package exception

import "github.com/yanun0323/errors"

// Stream errors
var (
	ErrTransportClosed      = errors.New("stream: transport closed")
	ErrEmptyPayload         = errors.New("stream: empty payload")
	ErrMonitorAlreadyActive = errors.New("stream: idle monitor already running")
	ErrCallbackDelivery     = errors.New("callback: delivery failed")
)
