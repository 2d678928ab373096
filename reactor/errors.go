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

package reactor

import (
	liberr "github.com/nabbar/wsrepl/errors"
)

const (
	ErrorParamsEmpty liberr.CodeError = iota + liberr.MinPkgReactor
	ErrorParamsInvalid
	ErrorSocketClosed
	ErrorSocketBusy
	ErrorSocketDial
	ErrorSocketAccept
	ErrorHandshake
	ErrorReadFailed
	ErrorWriteFailed
	ErrorListenFailed
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgReactor, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorParamsEmpty:
		return "at least one required parameter is empty"
	case ErrorParamsInvalid:
		return "one or more parameters are invalid"
	case ErrorSocketClosed:
		return "socket is closed"
	case ErrorSocketBusy:
		return "a write is already in flight on this socket"
	case ErrorSocketDial:
		return "unable to dial remote peer"
	case ErrorSocketAccept:
		return "unable to accept incoming connection"
	case ErrorHandshake:
		return "stream engine handshake failed"
	case ErrorReadFailed:
		return "read on socket failed"
	case ErrorWriteFailed:
		return "write on socket failed"
	case ErrorListenFailed:
		return "unable to start listener"
	}

	return liberr.NullMessage
}
