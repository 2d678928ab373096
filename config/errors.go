package config

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgConfig
	ErrorParamsInvalid
	ErrorConfigMissingViper
	ErrorConfigLoadFailed
	ErrorConfigValidation
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgConfig, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorConfigMissingViper:
		return "no viper instance registered"
	case ErrorConfigLoadFailed:
		return "failed to load configuration"
	case ErrorConfigValidation:
		return "configuration validation failed"
	}

	return liberr.NullMessage
}
