package daemon

import "errors"

// ErrUnknownSession is returned by Manager operations addressing a session
// id that is not (or no longer) registered.
var ErrUnknownSession = errors.New("daemon: unknown session")

// ErrSessionRefUnsafe is returned when a resume session-ref fails
// control.ValidSessionRef.
var ErrSessionRefUnsafe = errors.New("daemon: session ref contains unsafe characters")
