package telemetry

import "errors"

// ErrBadFrame indicates a wire message that could not be interpreted as a
// known frame type. The frame is discarded; the connection survives.
var ErrBadFrame = errors.New("malformed stream frame")
