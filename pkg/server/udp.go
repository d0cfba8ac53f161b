package server

import (
	"net"
	"time"
)

type listenerKind string

const (
	listenerAuth listenerKind = "auth"
	listenerAcct listenerKind = "acct"
	listenerCoA  listenerKind = "coa"
)

const udpReadTimeout = time.Second

// serveUDP runs the read loop for one UDP listener. Each datagram is
// handed to a pooled worker; when no worker is free the datagram is
// dropped, which is the correct backpressure for UDP clients that
// retransmit anyway.
func (s *Server) serveUDP(conn *net.UDPConn, kind listenerKind) {
	defer s.wg.Done()

	s.logger.Infof("%s listener serving on %s", kind, conn.LocalAddr())

	buffer := make([]byte, s.cfg.MaxPacketSize+1)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(udpReadTimeout))

		n, clientAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Errorf("%s listener read: %v", kind, err)
			continue
		}

		select {
		case <-s.workers:
			data := append([]byte(nil), buffer[:n]...)

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer func() {
					s.workers <- struct{}{}
				}()
				defer func() {
					if r := recover(); r != nil {
						s.logger.Errorf("panic handling request from %s: %v", clientAddr, r)
					}
				}()

				s.handleDatagram(kind, data, clientAddr.IP, clientAddr.String(), func(response []byte) {
					if _, err := conn.WriteToUDP(response, clientAddr); err != nil {
						s.logger.Errorf("send response to %s: %v", clientAddr, err)
						return
					}
					s.stats.responses.Add(1)
				})
			}()

		default:
			s.logger.Warnf("worker pool exhausted, dropping request from %s", clientAddr)
			s.stats.dropped.Add(1)
		}
	}
}
