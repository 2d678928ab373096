/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package httpserver

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgHttpServer
	ErrorParamsInvalid
	ErrorServerValidate
	ErrorHTTP2Configure
	ErrorPortUse
	ErrorInvalidAddress
	ErrorServerStart
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgHttpServer, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorServerValidate:
		return "server configuration is not valid"
	case ErrorHTTP2Configure:
		return "cannot configure http2 over the http server"
	case ErrorPortUse:
		return "server port is still in use"
	case ErrorInvalidAddress:
		return "listen address is not a valid host:port"
	case ErrorServerStart:
		return "cannot start http server"
	}

	return liberr.NullMessage
}
