package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve accepts clients until context cancellation or listener close. Each
// connection is a persistent, single-threaded request/response stream: the
// server reads frames in a loop and replies on the same connection until
// the client disconnects. Context cancellation also closes every open
// connection, so Serve returns even while a client holds one open.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			stop := context.AfterFunc(ctx, func() { _ = c.Close() })
			defer stop()
			serveConn(ctx, c, handler)
		}(conn)
	}
}

// serveConn drains one connection's frames sequentially. A request whose
// length header alone exceeds MaxRequestSize closes the connection without
// any response, so an oversized body is never read or parsed; any other
// read failure (EOF, reset) just ends the loop.
func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	for {
		body, err := readFrame(conn, MaxRequestSize)
		if err != nil {
			return
		}

		var req Request
		if jsonErr := json.Unmarshal(body, &req); jsonErr != nil {
			if writeErr := writeResponse(conn, Failure(fmt.Sprintf("malformed request: %v", jsonErr))); writeErr != nil {
				return
			}
			continue
		}

		resp := handler.Handle(ctx, req)
		if writeErr := writeResponse(conn, resp); writeErr != nil {
			return
		}
	}
}

// writeResponse marshals and frames resp, downgrading to a
// PAYLOAD_TOO_LARGE error when the encoded body exceeds MAX_RESPONSE_SIZE
// rather than ever writing an oversized frame.
func writeResponse(conn net.Conn, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		payload, _ = json.Marshal(Failure(err.Error()))
	}

	if len(payload) > MaxResponseSize {
		payload, _ = json.Marshal(Failure(ErrCodePayloadTooLarge))
	}

	return writeFrame(conn, payload)
}
