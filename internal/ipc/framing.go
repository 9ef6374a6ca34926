package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned by readFrame when the length header alone
// already exceeds the caller's limit. The caller must close the connection
// without reading the announced body and without sending a response.
var ErrFrameTooLarge = errors.New("ipc: frame exceeds size limit")

// readFrame reads one [u32 big-endian length][body] frame, rejecting
// (without reading the body) any length header above maxSize.
func readFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// writeFrame writes one [u32 big-endian length][body] frame.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > int(^uint32(0)) {
		return fmt.Errorf("ipc: payload of %d bytes exceeds u32 length header", len(payload))
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}
