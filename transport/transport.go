/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

// Package transport runs the dual-stack UDP listener: one goroutine
// per socket reading datagrams and handing each to dispatch.Handle on
// its own goroutine, with graceful shutdown via context cancellation.
package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/hdais/eqt-server/dispatch"
	"github.com/hdais/eqt-server/view"
)

// maxDatagramSize is the largest UDP query this server will read.
// Matches the EDNS payload size it advertises (dispatch.maxUDPPayload).
const maxDatagramSize = 4096

// Server owns the UDP sockets and the goroutines reading from them.
type Server struct {
	reg   *view.Registry
	conns []net.PacketConn
	wg    sync.WaitGroup
}

// New binds udp4 and udp6 listeners on port. Binding udp6 failing
// after udp4 succeeded (or vice versa) is logged and does not abort
// startup — an operator running IPv4-only or IPv6-only is a normal
// configuration, not an error.
func New(reg *view.Registry, port int) (*Server, error) {
	s := &Server{reg: reg}

	addr := fmt.Sprintf(":%d", port)
	c4, err4 := net.ListenPacket("udp4", addr)
	if err4 != nil {
		log.Printf("transport: udp4 listen on %s failed: %v", addr, err4)
	} else {
		s.conns = append(s.conns, c4)
	}

	c6, err6 := net.ListenPacket("udp6", addr)
	if err6 != nil {
		log.Printf("transport: udp6 listen on %s failed: %v", addr, err6)
	} else {
		s.conns = append(s.conns, c6)
	}

	if len(s.conns) == 0 {
		return nil, fmt.Errorf("transport: could not bind either udp4 or udp6 on port %d: %v / %v", port, err4, err6)
	}
	return s, nil
}

// Serve starts one read loop per bound socket and blocks until ctx is
// cancelled, at which point it stops the read loops, waits for
// in-flight datagrams to finish their reply, and then closes the
// sockets before returning.
func (s *Server) Serve(ctx context.Context) {
	for _, c := range s.conns {
		s.wg.Add(1)
		go s.readLoop(ctx, c)
	}

	<-ctx.Done()
	for _, c := range s.conns {
		c.SetReadDeadline(time.Now())
	}
	s.wg.Wait()
	for _, c := range s.conns {
		c.Close()
	}
}

func (s *Server) readLoop(ctx context.Context, conn net.PacketConn) {
	defer s.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return // read deadline set during shutdown
			}
			log.Printf("transport: ReadFrom(%s): %v", conn.LocalAddr(), err)
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		s.wg.Add(1)
		go func(raw []byte, addr net.Addr) {
			defer s.wg.Done()
			out := dispatch.Handle(s.reg, raw)
			if out == nil {
				return
			}
			if _, err := conn.WriteTo(out, addr); err != nil {
				log.Printf("transport: WriteTo(%s): %v", addr, err)
			}
		}(raw, addr)
	}
}
