package docsession

import "errors"

// ErrNoSession is returned when a path has no live session.
var ErrNoSession = errors.New("no session for path")
