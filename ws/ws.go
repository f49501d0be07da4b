package ws

import (
	"context"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lefinal/rally-server/client"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
	"go.uber.org/zap"
	"net"
	"net/http"
	"strings"
	"time"
)

// clientBufferSize is the buffer size for incoming and outgoing messages of
// each client.
const clientBufferSize = 256

// TrustedProxies holds the networks of reverse proxies whose X-Forwarded-For
// header is honored.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies parses the given CIDR notations. Plain addresses are
// accepted as single-host networks.
func ParseTrustedProxies(cidrs []string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, errors.Error{
					Code:    errors.ErrBadRequest,
					Kind:    errors.KindInvalidData,
					Message: "invalid trusted proxy address",
					Details: errors.Details{"addr": cidr},
				}
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip = ip4
				bits = 8 * net.IPv4len
			}
			proxies = append(proxies, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindInvalidData,
				Err:     err,
				Message: "invalid trusted proxy network",
				Details: errors.Details{"cidr": cidr},
			}
		}
		proxies = append(proxies, network)
	}
	return proxies, nil
}

func (p TrustedProxies) contains(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range p {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// RemoteIP extracts the ip of the peer. The X-Forwarded-For header is only
// considered if the peer itself is a trusted proxy. In that case the
// right-most entry that is not a trusted proxy is used.
func (p TrustedProxies) RemoteIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !p.contains(peer) {
		return peer
	}
	hops := make([]string, 0)
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(header, ",") {
			hops = append(hops, strings.TrimSpace(hop))
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if hops[i] == "" {
			continue
		}
		if net.ParseIP(hops[i]) == nil {
			// Unparsable hop. Fall back to the closest trusted one.
			return peer
		}
		if !p.contains(hops[i]) {
			return hops[i]
		}
		peer = hops[i]
	}
	return peer
}

// HandleWS handles websocket requests. The passed context is used in order to
// stop all remaining read-pumps. Connections that are rejected by the Hub's
// Admitter receive an error message and are closed. The remote ip is
// extracted using the given TrustedProxies.
func HandleWS(ctx context.Context, hub *Hub, proxies TrustedProxies) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Debug("upgrade connection", zap.Error(err))
			return
		}
		ip := proxies.RemoteIP(r)
		err = hub.admitter.Admit(ip)
		if err != nil {
			reject(hub.logger, conn, err)
			return
		}
		c := &Client{
			Client:     client.NewClient(uuid.New().String(), ip, clientBufferSize),
			hub:        hub,
			connection: conn,
		}
		c.logger = hub.logger.With(zap.String("client_id", c.ID))
		// Use the client's hub so that the reference from the handler can be dropped.
		select {
		case <-ctx.Done():
			hub.admitter.Release(ip)
			_ = conn.Close()
			return
		case c.hub.register <- c:
		}
		// Power the pumps.
		go c.writePump()
		go c.readPump(ctx)
	}
}

// reject sends an error message for the given error and closes the connection
// with the matching close code.
func reject(logger *zap.Logger, conn *websocket.Conn, err error) {
	defer func() { _ = conn.Close() }()
	deadline := time.Now().Add(writeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if writeErr := conn.WriteMessage(websocket.TextMessage, messages.EncodeError(err, "", 0)); writeErr != nil {
		logger.Debug("write rejection", zap.Error(writeErr))
		return
	}
	closeMessage := websocket.FormatCloseMessage(messages.CloseCodeFromError(err), string(messages.ErrorCodeFromError(err)))
	if writeErr := conn.WriteControl(websocket.CloseMessage, closeMessage, deadline); writeErr != nil {
		logger.Debug("write rejection close", zap.Error(writeErr))
	}
	e, _ := errors.Cast(err)
	logger.Debug("rejected connection", zap.String("reason", e.Message))
}
