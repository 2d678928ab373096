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

package errors

const (
	MinPkgReactor      = 100
	MinPkgGroupComm    = 200
	MinPkgGMCast       = 220
	MinPkgEVS          = 240
	MinPkgPC           = 260
	MinPkgGCS          = 400
	MinPkgGCache       = 500
	MinPkgCert         = 600
	MinPkgReplicator   = 700
	MinPkgWire         = 800
	MinPkgConfig       = 900
	MinPkgLogger       = 1000
	MinPkgMonitor      = 1100
	MinPkgNotify       = 1200
	MinPkgCheckpoint   = 1300
	MinPkgCmd          = 1400
	MinPkgHttpServer   = 1500
	MinPkgCertificate  = 1600

	MinAvailable = 4000
)
