package gcs

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgGCS
	ErrorParamsInvalid
	ErrorFIFOClosed
	ErrorFIFOFull
	ErrorNotSynced
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgGCS, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorFIFOClosed:
		return "action fifo is closed"
	case ErrorFIFOFull:
		return "action fifo is full"
	case ErrorNotSynced:
		return "only a synced node may originate actions"
	}

	return liberr.NullMessage
}
