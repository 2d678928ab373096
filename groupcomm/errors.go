package groupcomm

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgGroupComm
	ErrorParamsInvalid
	ErrorNotConnected
	ErrorAlreadyConnected
	ErrorTransport
	ErrorNoPrimary
)

const (
	ErrorGMCastDial liberr.CodeError = iota + liberr.MinPkgGMCast
	ErrorGMCastSubscribe
	ErrorGMCastVersionMismatch
)

const (
	ErrorEVSGap liberr.CodeError = iota + liberr.MinPkgEVS
	ErrorEVSOutOfOrder
)

const (
	ErrorPCNoMajority liberr.CodeError = iota + liberr.MinPkgPC
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgGroupComm, getMessage)
	liberr.RegisterIdFctMessage(liberr.MinPkgGMCast, getMessage)
	liberr.RegisterIdFctMessage(liberr.MinPkgEVS, getMessage)
	liberr.RegisterIdFctMessage(liberr.MinPkgPC, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorNotConnected:
		return "group communication stack is not connected"
	case ErrorAlreadyConnected:
		return "group communication stack is already connected"
	case ErrorTransport:
		return "transport failure while sending or receiving"
	case ErrorNoPrimary:
		return "no primary component is currently installed"
	case ErrorGMCastDial:
		return "unable to reach any seed in the gossip list"
	case ErrorGMCastSubscribe:
		return "unable to subscribe to the group subject"
	case ErrorGMCastVersionMismatch:
		return "peer wire version does not satisfy this node's version constraint"
	case ErrorEVSGap:
		return "a gap was detected in the per-source delivery sequence"
	case ErrorEVSOutOfOrder:
		return "message delivered out of causal order"
	case ErrorPCNoMajority:
		return "view does not contain a majority of the previous primary component"
	}

	return liberr.NullMessage
}
