package cert

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgCert
	ErrorParamsInvalid
	ErrorCertificationFailed
	ErrorFatalIO
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgCert, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorCertificationFailed:
		return "write-set rejected: conflicts with a concurrently certified write-set"
	case ErrorFatalIO:
		return "i/o failure during certification, node must leave the cluster"
	}

	return liberr.NullMessage
}
