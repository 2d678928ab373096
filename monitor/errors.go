package monitor

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgMonitor
	ErrorParamsInvalid
	ErrorServerInit
	ErrorSnapshotFailed
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgMonitor, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorServerInit:
		return "failed to initialise the monitor http server"
	case ErrorSnapshotFailed:
		return "snapshot hook failed while serving a donor request"
	}

	return liberr.NullMessage
}
