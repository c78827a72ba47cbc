package common

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrConnectionLost  = errors.New("connection lost")
	ErrUnknownOpCode   = errors.New("unknown opcode")
	ErrPayloadTooLarge = errors.New("payload too large")
)

type Header struct {
	Op     OpCode
	Length uint32
}

type Message struct {
	Op      OpCode
	Payload []byte
}

// LengthPrefix is the second header of a PUT exchange. It shares the wire
// shape of a Header but its opcode byte carries no meaning.
type LengthPrefix struct {
	Length uint32
}

func EncodeHeader(op OpCode, length int64) ([]byte, error) {
	if length < 0 || length > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}

	arr := make([]byte, HeaderSize)
	arr[0] = byte(op)
	binary.BigEndian.PutUint32(arr[1:5], uint32(length))
	return arr, nil
}

func HeaderFromBytes(bytes []byte) Header {
	return Header{
		Op:     OpCode(bytes[0]),
		Length: binary.BigEndian.Uint32(bytes[1:5]),
	}
}

func (msg *Message) ToBytes() ([]byte, error) {
	header, err := EncodeHeader(msg.Op, int64(len(msg.Payload)))
	if err != nil {
		return nil, err
	}

	arr := make([]byte, HeaderSize+len(msg.Payload))
	copy(arr[:HeaderSize], header)
	copy(arr[HeaderSize:], msg.Payload)
	return arr, nil
}

func (msg *Message) Text() string {
	return string(msg.Payload)
}

// WriteFrame writes the header and payload with a single Write call and
// returns the number of bytes written.
func WriteFrame(w io.Writer, op OpCode, payload []byte) (int, error) {
	msg := Message{Op: op, Payload: payload}
	arr, err := msg.ToBytes()
	if err != nil {
		return 0, err
	}
	return w.Write(arr)
}

func WriteLengthPrefix(w io.Writer, length int64) (int, error) {
	header, err := EncodeHeader(0, length)
	if err != nil {
		return 0, err
	}
	return w.Write(header)
}

// ReadFrame reads one complete frame. It returns io.EOF when the peer closed
// the stream before sending any byte of a new frame, and an error wrapping
// ErrConnectionLost when the stream ends inside a frame.
func ReadFrame(r io.Reader) (*Message, error) {
	return ReadFrameLimit(r, MaxPayloadLength)
}

// ReadFrameLimit is ReadFrame for peers that must not announce payloads
// longer than limit. A longer frame fails with ErrPayloadTooLarge before any
// payload byte is read.
func ReadFrameLimit(r io.Reader, limit uint32) (*Message, error) {
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	if !header.Op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpCode, header.Op)
	}
	if header.Length > limit {
		return nil, fmt.Errorf("%w: %v announces %d bytes, limit is %d", ErrPayloadTooLarge, header.Op, header.Length, limit)
	}

	// The buffer grows with the bytes actually received, so a bogus length
	// does not allocate up front.
	var payload bytes.Buffer
	n, err := io.CopyN(&payload, r, int64(header.Length))
	if err != nil {
		return nil, connectionLost(n, int64(header.Length), err)
	}

	return &Message{
		Op:      header.Op,
		Payload: payload.Bytes(),
	}, nil
}

// ReadLengthPrefix reads the header that announces the raw byte count of a
// PUT upload. The opcode byte is discarded.
func ReadLengthPrefix(r io.Reader) (LengthPrefix, error) {
	header, err := readHeader(r)
	if err != nil {
		return LengthPrefix{}, err
	}
	return LengthPrefix{Length: header.Length}, nil
}

func readHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return Header{}, io.EOF
		}
		if n == 0 {
			return Header{}, fmt.Errorf("reading header: %w", err)
		}
		return Header{}, connectionLost(int64(n), int64(HeaderSize), err)
	}
	return HeaderFromBytes(buf[:]), nil
}

func connectionLost(got int64, want int64, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: read %d of %d bytes", ErrConnectionLost, got, want)
	}
	return fmt.Errorf("%w: read %d of %d bytes: %w", ErrConnectionLost, got, want, err)
}
