package gcache

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgGCache
	ErrorParamsInvalid
	ErrorNoSpace
	ErrorSeqnoLocked
	ErrorSeqnoNotFound
	ErrorIndexGap
	ErrorIO
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgGCache, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorNoSpace:
		return "no space available in mem store or page store"
	case ErrorSeqnoLocked:
		return "buffer cannot be discarded while its seqno is locked"
	case ErrorSeqnoNotFound:
		return "no buffer registered for the requested seqno"
	case ErrorIndexGap:
		return "seqno index is not contiguous"
	case ErrorIO:
		return "page store i/o failure"
	}

	return liberr.NullMessage
}
