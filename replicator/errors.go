package replicator

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgReplicator
	ErrorParamsInvalid
	ErrorConnectionLost
	ErrorNotConnected
	ErrorNotPrimary
	ErrorCertificationFailed
	ErrorSizeExceeded
	ErrorBadRequest
	ErrorTransportError
	ErrorConflict
	ErrorInternalFatal
	ErrorSSTTimeout
	ErrorAlreadyConnected
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgReplicator, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorConnectionLost:
		return "connection to the cluster was lost"
	case ErrorNotConnected:
		return "node is not connected to a primary component"
	case ErrorNotPrimary:
		return "node is not a member of the primary component"
	case ErrorCertificationFailed:
		return "write-set rejected by certification"
	case ErrorSizeExceeded:
		return "write-set exceeds the configured size limit"
	case ErrorBadRequest:
		return "invalid request for the current node state"
	case ErrorTransportError:
		return "transport failure talking to a peer"
	case ErrorConflict:
		return "local write-set conflicts with a concurrently certified one"
	case ErrorInternalFatal:
		return "unrecoverable internal error, node must leave the cluster"
	case ErrorSSTTimeout:
		return "state snapshot transfer did not complete before the deadline"
	case ErrorAlreadyConnected:
		return "node is already connected"
	}

	return liberr.NullMessage
}
