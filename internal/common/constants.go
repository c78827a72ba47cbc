package common

import "math"

const HeaderSize int = 1 + 4

// MaxPayloadLength is the largest length a header can declare.
const MaxPayloadLength = math.MaxUint32

// MaxRequestLength bounds the payload of a client request. The only
// request with a payload is PUT, which carries a file name.
const MaxRequestLength = 4096

// ChunkSize is the buffer size used when streaming raw file bytes.
const ChunkSize = 4096

// EmptyListing is the LIST payload sent when the server holds no files.
const EmptyListing = "no files on server"

type OpCode uint8

const (
	List    OpCode = iota
	Put     OpCode = iota
	Quit    OpCode = iota
	Success OpCode = iota
	Error   OpCode = iota
)

func (op OpCode) Valid() bool {
	return op <= Error
}

func (op OpCode) String() string {
	switch op {
	case List:
		return "LIST"
	case Put:
		return "PUT"
	case Quit:
		return "QUIT"
	case Success:
		return "SUCCESS"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
