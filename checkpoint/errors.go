package checkpoint

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgCheckpoint
	ErrorParamsInvalid
	ErrorOpenFailed
	ErrorIO
	ErrorNotFound
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgCheckpoint, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorOpenFailed:
		return "unable to open checkpoint store"
	case ErrorIO:
		return "checkpoint store i/o failure"
	case ErrorNotFound:
		return "no checkpoint recorded yet"
	}

	return liberr.NullMessage
}
