package notify

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgNotify
	ErrorParamsInvalid
	ErrorDisabled
	ErrorTransportError
	ErrorSubscribeFailed
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgNotify, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorDisabled:
		return "notify is disabled in configuration"
	case ErrorTransportError:
		return "transport failure talking to the nats broker"
	case ErrorSubscribeFailed:
		return "failed to subscribe to the event subject"
	}

	return liberr.NullMessage
}
