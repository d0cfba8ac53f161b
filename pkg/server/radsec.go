package server

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/vitalvas/radiusd/pkg/packet"
)

// bindRadSec opens the TLS listener for RADIUS over TLS (RFC 6614)
func (s *Server) bindRadSec() (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(s.cfg.RadSecCert, s.cfg.RadSecKey)
	if err != nil {
		return nil, fmt.Errorf("load radsec keypair: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	addr := net.JoinHostPort(s.cfg.BindAddress, fmt.Sprintf("%d", s.cfg.RadSecPort))
	return tls.Listen("tcp", addr, tlsConfig)
}

func (s *Server) serveRadSec(lis net.Listener) {
	defer s.wg.Done()

	s.logger.Infof("radsec listener serving on %s", lis.Addr())

	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Errorf("radsec accept: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveRadSecConn(conn)
		}()
	}
}

// serveRadSecConn reads length-framed RADIUS packets off one TLS
// stream. The RADIUS header's own length field is the frame length,
// so no extra framing exists on the wire.
func (s *Server) serveRadSecConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	srcIP := remoteIP(conn.RemoteAddr())

	s.logger.Debugf("radsec connection from %s", remote)

	// Serialize writes; responses from concurrent workers share the stream
	var writeMu sync.Mutex
	respond := func(response []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := conn.Write(response); err != nil {
			s.logger.Errorf("radsec write to %s: %v", remote, err)
			return
		}
		s.stats.responses.Add(1)
	}

	header := make([]byte, packet.PacketHeaderLength)

	for {
		if s.ctx.Err() != nil {
			return
		}

		if _, err := io.ReadFull(conn, header[:4]); err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				s.logger.Debugf("radsec read from %s: %v", remote, err)
			}
			return
		}

		length := int(binary.BigEndian.Uint16(header[2:4]))
		if length < packet.PacketHeaderLength || length > s.cfg.MaxPacketSize {
			s.logger.Warnf("radsec frame with invalid length %d from %s", length, remote)
			s.stats.malformedPackets.Add(1)
			return
		}

		data := make([]byte, length)
		copy(data, header[:4])
		if _, err := io.ReadFull(conn, data[4:]); err != nil {
			s.logger.Debugf("radsec short frame from %s: %v", remote, err)
			return
		}

		kind, ok := kindForCode(packet.Code(data[0]))
		if !ok {
			s.logger.Warnf("radsec frame with unexpected code %d from %s", data[0], remote)
			s.stats.dropped.Add(1)
			continue
		}

		select {
		case <-s.workers:
			s.wg.Add(1)
			go func(data []byte) {
				defer s.wg.Done()
				defer func() {
					s.workers <- struct{}{}
				}()
				defer func() {
					if r := recover(); r != nil {
						s.logger.Errorf("panic handling radsec request from %s: %v", remote, r)
					}
				}()

				s.handleDatagram(kind, data, srcIP, remote, respond)
			}(data)

		default:
			s.logger.Warnf("worker pool exhausted, dropping radsec request from %s", remote)
			s.stats.dropped.Add(1)
		}
	}
}

// kindForCode maps a request code onto the listener kind whose rules
// apply; the TLS stream multiplexes all request types.
func kindForCode(code packet.Code) (listenerKind, bool) {
	switch code {
	case packet.CodeAccessRequest, packet.CodeStatusServer:
		return listenerAuth, true
	case packet.CodeAccountingRequest:
		return listenerAcct, true
	case packet.CodeDisconnectRequest, packet.CodeCoARequest:
		return listenerCoA, true
	default:
		return "", false
	}
}

func remoteIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}
