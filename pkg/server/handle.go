package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/vitalvas/radiusd/pkg/auth"
	"github.com/vitalvas/radiusd/pkg/dedup"
	"github.com/vitalvas/radiusd/pkg/packet"
	"github.com/vitalvas/radiusd/pkg/radcrypto"
	"github.com/vitalvas/radiusd/pkg/session"
)

// handleDatagram runs one request through the full pipeline. respond
// is called with signed wire bytes when a response is due; integrity
// and transport failures drop the request silently.
func (s *Server) handleDatagram(kind listenerKind, data []byte, srcIP net.IP, srcAddr string, respond func([]byte)) {
	if len(data) > s.cfg.MaxPacketSize {
		s.logger.Debugf("oversized datagram (%d bytes) from %s", len(data), srcAddr)
		s.stats.malformedPackets.Add(1)
		return
	}

	client, ok := s.clients.Lookup(srcIP)
	if !ok {
		s.logger.Warnf("datagram from unknown client %s", srcAddr)
		s.stats.dropped.Add(1)
		return
	}

	request, err := packet.Decode(data, s.cfg.MaxPacketSize)
	if err != nil {
		s.logger.Debugf("malformed packet from %s: %v", srcAddr, err)
		s.stats.malformedPackets.Add(1)
		return
	}

	if !codeAllowedOn(kind, request.Code) {
		s.logger.Warnf("unexpected %s on %s listener from %s", request.Code, kind, srcAddr)
		s.stats.dropped.Add(1)
		return
	}

	if err := s.verifyIntegrity(client, request, data); err != nil {
		s.logger.Warnf("integrity check failed for %s from %s: %v", request.Code, srcAddr, err)
		s.stats.integrityFailures.Add(1)
		return
	}

	tx, decision := s.dedupTable.Admit(srcAddr, request.Identifier, request.Authenticator)
	switch decision {
	case dedup.DecisionReplay:
		s.stats.dedupHits.Add(1)
		s.logger.Debugf("replaying cached response for %s id=%d", srcAddr, request.Identifier)
		respond(tx.Response())
		return

	case dedup.DecisionDuplicate:
		s.stats.dedupHits.Add(1)

		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout())
		defer cancel()

		response, err := tx.Wait(ctx)
		if err != nil || response == nil {
			return
		}
		respond(response)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout())
	defer cancel()

	response := s.dispatch(ctx, kind, client, request)
	if response == nil {
		tx.Drop()
		return
	}

	wire, err := s.sealResponse(request, response, client.Secret)
	if err != nil {
		s.logger.Errorf("seal response for %s: %v", srcAddr, err)
		tx.Drop()
		return
	}

	tx.Finish(wire)
	respond(wire)
}

func codeAllowedOn(kind listenerKind, code packet.Code) bool {
	switch kind {
	case listenerAuth:
		return code == packet.CodeAccessRequest || code == packet.CodeStatusServer
	case listenerAcct:
		// RFC 5997 defines Status-Server on the accounting port too
		return code == packet.CodeAccountingRequest || code == packet.CodeStatusServer
	case listenerCoA:
		return code == packet.CodeDisconnectRequest || code == packet.CodeCoARequest
	default:
		return false
	}
}

// verifyIntegrity enforces the per-code authenticator rules on the
// raw wire bytes.
func (s *Server) verifyIntegrity(client *Client, request *packet.Packet, data []byte) error {
	switch request.Code {
	case packet.CodeAccessRequest:
		if radcrypto.HasMessageAuthenticator(data) {
			return radcrypto.VerifyMessageAuthenticator(data, client.Secret)
		}
		if client.RequireMessageAuthenticator {
			return errors.New("message-authenticator required but absent")
		}
		return nil

	case packet.CodeStatusServer:
		// RFC 5997 makes Message-Authenticator mandatory here
		return radcrypto.VerifyMessageAuthenticator(data, client.Secret)

	case packet.CodeAccountingRequest, packet.CodeDisconnectRequest, packet.CodeCoARequest:
		attrBytes := data[packet.PacketHeaderLength:]
		if !radcrypto.VerifyRequestAuthenticator(uint8(request.Code), request.Identifier,
			uint16(len(data)), attrBytes, request.Authenticator, client.Secret) {
			return radcrypto.ErrIntegrityCheckFailed
		}
		if radcrypto.HasMessageAuthenticator(data) {
			return radcrypto.VerifyMessageAuthenticator(data, client.Secret)
		}
		return nil

	default:
		return fmt.Errorf("no integrity rule for %s", request.Code)
	}
}

// dispatch routes a verified request to its handler. A nil return
// means no response is sent.
func (s *Server) dispatch(ctx context.Context, kind listenerKind, client *Client, request *packet.Packet) *packet.Packet {
	switch request.Code {
	case packet.CodeAccessRequest:
		return s.handleAccessRequest(ctx, client, request)
	case packet.CodeStatusServer:
		return s.handleStatusServer(kind, request)
	case packet.CodeAccountingRequest:
		return s.handleAccountingRequest(ctx, client, request)
	case packet.CodeDisconnectRequest, packet.CodeCoARequest:
		return s.handleInboundDynAuth(ctx, request)
	default:
		return nil
	}
}

func (s *Server) handleAccessRequest(ctx context.Context, client *Client, request *packet.Packet) *packet.Packet {
	s.stats.authRequests.Add(1)

	username, cred, err := s.extractCredential(client, request)
	if err != nil {
		s.logger.Infof("access-request from %s rejected: %v", client.Name, err)
		s.stats.authRejects.Add(1)
		return rejectResponse(request)
	}

	if !client.AllowsProtocol(cred.Protocol) {
		s.logger.Infof("protocol %s not allowed for client %s", cred.Protocol, client.Name)
		s.stats.authRejects.Add(1)
		return rejectResponse(request)
	}

	verdict := s.dispatcher.Authenticate(ctx, username, cred)

	switch verdict.Kind {
	case auth.VerdictAccept:
		s.stats.authAccepts.Add(1)
		s.logger.Infof("access accepted for user %s via client %s", username, client.Name)

		response := request.NewResponse(packet.CodeAccessAccept)
		for _, attr := range verdict.ReplyAttributes {
			response.AddAttribute(attr)
		}
		return response

	case auth.VerdictChallenge:
		s.stats.authChallenges.Add(1)

		response := request.NewResponse(packet.CodeAccessChallenge)
		if len(verdict.State) > 0 {
			response.AddAttribute(packet.NewAttribute(packet.AttrState, verdict.State))
		}
		if verdict.Message != "" {
			response.AddAttribute(packet.NewStringAttribute(packet.AttrReplyMessage, verdict.Message))
		}
		return response

	default:
		s.stats.authRejects.Add(1)
		if verdict.Unavailable {
			s.logger.Warnf("access rejected for user %s: backends unavailable (%s)", username, verdict.Reason)
		} else {
			s.logger.Infof("access rejected for user %s: %s", username, verdict.Reason)
		}
		// The wire response never reveals why
		return rejectResponse(request)
	}
}

// extractCredential pulls the authentication material out of an
// Access-Request. CHAP wins over PAP when both are present.
func (s *Server) extractCredential(client *Client, request *packet.Packet) (string, auth.Credential, error) {
	usernameAttr, ok := request.GetAttribute(packet.AttrUserName)
	if !ok {
		return "", auth.Credential{}, errors.New("missing User-Name")
	}
	username := usernameAttr.String()

	if chapAttr, ok := request.GetAttribute(packet.AttrCHAPPassword); ok {
		if len(chapAttr.Value) != 1+radcrypto.CHAPResponseLength {
			return "", auth.Credential{}, errors.New("malformed CHAP-Password")
		}

		challenge := request.Authenticator[:]
		if challengeAttr, ok := request.GetAttribute(packet.AttrCHAPChallenge); ok {
			challenge = challengeAttr.Value
		}

		return username, auth.Credential{
			Protocol:      auth.ProtocolCHAP,
			CHAPID:        chapAttr.Value[0],
			CHAPChallenge: challenge,
			CHAPResponse:  chapAttr.Value[1:],
		}, nil
	}

	if passwordAttr, ok := request.GetAttribute(packet.AttrUserPassword); ok {
		password, err := radcrypto.DecryptUserPassword(passwordAttr.Value, client.Secret, request.Authenticator)
		if err != nil {
			return "", auth.Credential{}, fmt.Errorf("decrypt User-Password: %w", err)
		}

		return username, auth.Credential{
			Protocol: auth.ProtocolPAP,
			Password: password,
		}, nil
	}

	if _, ok := request.GetAttribute(packet.AttrEAPMessage); ok {
		return "", auth.Credential{}, errors.New("EAP not supported")
	}

	return "", auth.Credential{}, errors.New("no credential attribute present")
}

// handleStatusServer answers per RFC 5997: Access-Accept on the auth
// port, Accounting-Response on the accounting port.
func (s *Server) handleStatusServer(kind listenerKind, request *packet.Packet) *packet.Packet {
	if kind == listenerAcct {
		return request.NewResponse(packet.CodeAccountingResponse)
	}

	response := request.NewResponse(packet.CodeAccessAccept)
	response.AddAttribute(packet.NewStringAttribute(packet.AttrReplyMessage, "radiusd alive"))
	return response
}

func (s *Server) handleAccountingRequest(ctx context.Context, client *Client, request *packet.Packet) *packet.Packet {
	s.stats.acctRequests.Add(1)

	statusAttr, ok := request.GetAttribute(packet.AttrAcctStatusType)
	if !ok {
		s.logger.Warnf("accounting-request without Acct-Status-Type from %s", client.Name)
		return nil
	}
	status, err := statusAttr.Integer()
	if err != nil {
		return nil
	}

	switch status {
	case packet.AcctStatusStart:
		s.acctStart(ctx, client, request)
	case packet.AcctStatusInterimUpdate:
		s.acctInterim(ctx, request)
	case packet.AcctStatusStop:
		s.acctStop(ctx, request)
	case packet.AcctStatusAccountingOn:
		s.logger.Infof("accounting-on from NAS %s", nasIdentifier(request))
	case packet.AcctStatusAccountingOff:
		s.acctNASOff(ctx, request)
	default:
		s.logger.Debugf("ignoring Acct-Status-Type %d", status)
	}

	// Accounting-Response is always empty; state errors surface only
	// in logs so the NAS stops retransmitting
	return request.NewResponse(packet.CodeAccountingResponse)
}

func (s *Server) acctStart(ctx context.Context, client *Client, request *packet.Packet) {
	rec := session.Record{
		SessionID:      attrString(request, packet.AttrAcctSessionID),
		Username:       attrString(request, packet.AttrUserName),
		NASIdentifier:  nasIdentifier(request),
		CallingStation: attrString(request, packet.AttrCallingStationID),
	}

	if ipAttr, ok := request.GetAttribute(packet.AttrNASIPAddress); ok {
		if ip, err := ipAttr.IP(); err == nil {
			rec.NASIPAddress = ip
		}
	}

	// A NAS that omits Acct-Session-Id still gets its session tracked
	// under a synthesized id
	if rec.SessionID == "" {
		rec.SessionID = uuid.NewString()
		s.logger.Warnf("accounting start without Acct-Session-Id from %s, synthesized %s", client.Name, rec.SessionID)
	}

	if err := s.tracker.Start(ctx, rec); err != nil {
		s.logger.Errorf("session start %s: %v", rec.SessionID, err)
	}
}

func (s *Server) acctInterim(ctx context.Context, request *packet.Packet) {
	key := sessionKey(request)

	input, output := octetCounters(request)
	if err := s.tracker.InterimUpdate(ctx, key, input, output, attrInteger(request, packet.AttrAcctSessionTime)); err != nil {
		s.logger.Warnf("interim update %s: %v", key, err)
	}
}

func (s *Server) acctStop(ctx context.Context, request *packet.Packet) {
	key := sessionKey(request)

	input, output := octetCounters(request)
	cause := attrInteger(request, packet.AttrAcctTerminateCause)

	if err := s.tracker.Stop(ctx, key, input, output, attrInteger(request, packet.AttrAcctSessionTime), cause); err != nil {
		s.logger.Warnf("session stop %s: %v", key, err)
	}
}

// acctNASOff finalizes every session of a NAS that announced shutdown
func (s *Server) acctNASOff(ctx context.Context, request *packet.Packet) {
	nas := nasIdentifier(request)
	s.logger.Infof("accounting-off from NAS %s, finalizing its sessions", nas)

	for _, rec := range s.tracker.Active() {
		if rec.NASIdentifier != nas {
			continue
		}
		if err := s.tracker.Stop(ctx, rec.Key(), rec.InputOctets, rec.OutputOctets,
			rec.SessionTime, packet.TerminateCauseNASReboot); err != nil {
			s.logger.Errorf("finalize session %s: %v", rec.Key(), err)
		}
	}
}

// handleInboundDynAuth answers Disconnect/CoA requests arriving from
// an authorized client, terminating tracked sessions on demand.
func (s *Server) handleInboundDynAuth(ctx context.Context, request *packet.Packet) *packet.Packet {
	s.stats.coaRequests.Add(1)

	ackCode := packet.CodeDisconnectACK
	nakCode := packet.CodeDisconnectNAK
	if request.Code == packet.CodeCoARequest {
		ackCode = packet.CodeCoAAck
		nakCode = packet.CodeCoANak
	}

	sessionID := attrString(request, packet.AttrAcctSessionID)
	if sessionID == "" {
		response := request.NewResponse(nakCode)
		response.AddAttribute(packet.NewIntegerAttribute(packet.AttrErrorCause, packet.ErrorCauseMissingAttribute))
		return response
	}

	rec, ok := s.tracker.Find(sessionID)
	if !ok {
		response := request.NewResponse(nakCode)
		response.AddAttribute(packet.NewIntegerAttribute(packet.AttrErrorCause, packet.ErrorCauseSessionContextNotFound))
		return response
	}

	if request.Code == packet.CodeCoARequest {
		// Authorization changes need NAS cooperation this server
		// cannot provide on behalf of the NAS
		response := request.NewResponse(nakCode)
		response.AddAttribute(packet.NewIntegerAttribute(packet.AttrErrorCause, packet.ErrorCauseUnsupportedService))
		return response
	}

	if err := s.tracker.Stop(ctx, rec.Key(), rec.InputOctets, rec.OutputOctets,
		rec.SessionTime, packet.TerminateCauseAdminReset); err != nil {
		s.logger.Errorf("disconnect session %s: %v", rec.Key(), err)
		response := request.NewResponse(nakCode)
		response.AddAttribute(packet.NewIntegerAttribute(packet.AttrErrorCause, packet.ErrorCauseSessionContextNotRemovable))
		return response
	}

	s.logger.Infof("session %s terminated by disconnect-request", sessionID)
	return request.NewResponse(ackCode)
}

// sealResponse encodes a response, mirrors the Message-Authenticator
// when the request carried one and signs the response authenticator.
func (s *Server) sealResponse(request, response *packet.Packet, secret []byte) ([]byte, error) {
	data, err := response.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	// Message-Authenticator is computed with the request authenticator
	// in the header, then the response authenticator overwrites it
	copy(data[4:20], request.Authenticator[:])

	needsMA := request.Code == packet.CodeAccessRequest || request.Code == packet.CodeStatusServer
	if needsMA {
		data, err = radcrypto.AddMessageAuthenticator(data, secret)
		if err != nil {
			return nil, fmt.Errorf("add message-authenticator: %w", err)
		}
	}

	if err := radcrypto.SignWirePacket(data, request.Authenticator, secret); err != nil {
		return nil, fmt.Errorf("sign response: %w", err)
	}

	return data, nil
}

func rejectResponse(request *packet.Packet) *packet.Packet {
	return request.NewResponse(packet.CodeAccessReject)
}

func sessionKey(request *packet.Packet) string {
	rec := session.Record{
		SessionID:     attrString(request, packet.AttrAcctSessionID),
		NASIdentifier: nasIdentifier(request),
	}
	return rec.Key()
}

// nasIdentifier prefers the NAS-Identifier attribute, falling back to
// NAS-IP-Address.
func nasIdentifier(request *packet.Packet) string {
	if id := attrString(request, packet.AttrNASIdentifier); id != "" {
		return id
	}
	if ipAttr, ok := request.GetAttribute(packet.AttrNASIPAddress); ok {
		if ip, err := ipAttr.IP(); err == nil {
			return ip.String()
		}
	}
	return ""
}

func octetCounters(request *packet.Packet) (input, output uint64) {
	input = uint64(attrInteger(request, packet.AttrAcctInputOctets))
	output = uint64(attrInteger(request, packet.AttrAcctOutputOctets))

	// Gigaword attributes carry the high 32 bits
	input |= uint64(attrInteger(request, packet.AttrAcctInputGigawords)) << 32
	output |= uint64(attrInteger(request, packet.AttrAcctOutputGigawords)) << 32

	return input, output
}

func attrString(request *packet.Packet, attrType uint8) string {
	if attr, ok := request.GetAttribute(attrType); ok {
		return attr.String()
	}
	return ""
}

func attrInteger(request *packet.Packet, attrType uint8) uint32 {
	if attr, ok := request.GetAttribute(attrType); ok {
		if v, err := attr.Integer(); err == nil {
			return v
		}
	}
	return 0
}
