package reactor

// Status is the result of a stream engine operation (handshake, read or
// write). It mirrors the contract described for the async I/O reactor: a
// pluggable stream engine reports back one of a small fixed set of outcomes
// so the reactor core never needs to know which scheme (identity, TLS, ...)
// produced it.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusWantRead
	StatusWantWrite
	StatusEOF
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWantRead:
		return "want_read"
	case StatusWantWrite:
		return "want_write"
	case StatusEOF:
		return "eof"
	case StatusError:
		return "error"
	default:
		return "unknown status"
	}
}

// IsEOF reports whether the status represents a peer-closed condition, kept
// distinct from other error statuses because upstream state machines (GCS,
// groupcomm) treat eof and transport errors differently.
func (s Status) IsEOF() bool {
	return s == StatusEOF
}

// ConnState traces what a socket is currently doing, surfaced to monitoring
// hooks and to tests asserting on reactor liveness.
type ConnState uint8

const (
	ConnectionDial ConnState = iota
	ConnectionNew
	ConnectionRead
	ConnectionCloseRead
	ConnectionHandler
	ConnectionWrite
	ConnectionCloseWrite
	ConnectionClose
)

func (c ConnState) String() string {
	switch c {
	case ConnectionDial:
		return "Dial Connection"
	case ConnectionNew:
		return "New Connection"
	case ConnectionRead:
		return "Read Incoming Stream"
	case ConnectionCloseRead:
		return "Close Incoming Stream"
	case ConnectionHandler:
		return "Run HandlerFunc"
	case ConnectionWrite:
		return "Write Outgoing Steam"
	case ConnectionCloseWrite:
		return "Close Outgoing Stream"
	case ConnectionClose:
		return "Close Connection"
	default:
		return "unknown connection state"
	}
}

const DefaultBufferSize = 32 * 1024

const EOL = byte('\n')

// ErrorFilter drops the noise generated when a socket is closed out from
// under a blocked read/write (the standard library reports this as a plain
// string, not a typed error), so upstream state machines see a clean nil
// instead of having to string-match themselves.
func ErrorFilter(err error) error {
	if err == nil {
		return nil
	}

	if containsClosedConnMessage(err.Error()) {
		return nil
	}

	return err
}

func containsClosedConnMessage(msg string) bool {
	const needle = "use of closed network connection"

	if len(msg) < len(needle) {
		return false
	}

	for i := 0; i+len(needle) <= len(msg); i++ {
		if msg[i:i+len(needle)] == needle {
			return true
		}
	}

	return false
}
