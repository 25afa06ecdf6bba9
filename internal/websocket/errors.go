package websocket

import "errors"

// errTransientDispatch marks a best-effort send that was dropped because the
// client's buffer is full. The dispatcher never retries individual sends.
var errTransientDispatch = errors.New("send buffer full")
