package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrBrokerRejected wraps an error object returned by the broker API, as
// opposed to a transport failure.
var ErrBrokerRejected = errors.New("broker rejected request")

// Session is one authenticated broker connection. Sessions are short-lived:
// the monitor opens one per account per sweep and closes it when done.
type Session interface {
	Authorize(ctx context.Context, token string) (*AccountInfo, error)
	Balance(ctx context.Context) (*BalanceInfo, error)
	Portfolio(ctx context.Context) ([]Position, error)
	Close() error
}

// Dialer opens broker sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// ClientConfig configures websocket session behavior.
type ClientConfig struct {
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// ReadTimeout is timeout for reading one response.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing one request.
	WriteTimeout time.Duration
}

// DefaultClientConfig returns default session configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// WSDialer dials a Deriv-style JSON-over-websocket API endpoint.
type WSDialer struct {
	endpoint string
	config   ClientConfig
}

// NewWSDialer creates a Dialer for endpoint (app id already encoded in the
// endpoint query string).
func NewWSDialer(endpoint string, config *ClientConfig) *WSDialer {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = *config
	}
	return &WSDialer{endpoint: endpoint, config: cfg}
}

// Dial opens one websocket session.
func (d *WSDialer) Dial(ctx context.Context) (Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, d.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	return &wsSession{conn: conn, config: d.config}, nil
}

var _ Dialer = (*WSDialer)(nil)

// wsSession implements Session over one websocket connection. Requests carry
// a req_id and the session reads until the matching response arrives;
// unsolicited frames are dropped.
type wsSession struct {
	conn   *websocket.Conn
	config ClientConfig

	mu    sync.Mutex // one request/response exchange at a time
	reqID atomic.Uint64
}

// Authorize authenticates the session. Must be called before Balance or
// Portfolio.
func (s *wsSession) Authorize(ctx context.Context, token string) (*AccountInfo, error) {
	reqID := s.reqID.Add(1)

	var resp authorizeResponse
	err := s.roundTrip(ctx, reqID, authorizeRequest{Authorize: token, ReqID: reqID}, &resp)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("authorize: %w: %s (%s)", ErrBrokerRejected, resp.Error.Message, resp.Error.Code)
	}
	if resp.Authorize == nil {
		return nil, fmt.Errorf("authorize: empty response")
	}

	return &AccountInfo{
		LoginID:   resp.Authorize.LoginID,
		IsVirtual: resp.Authorize.IsVirtual == 1,
		Currency:  resp.Authorize.Currency,
	}, nil
}

// Balance returns the current cash balance.
func (s *wsSession) Balance(ctx context.Context) (*BalanceInfo, error) {
	reqID := s.reqID.Add(1)

	var resp balanceResponse
	err := s.roundTrip(ctx, reqID, balanceRequest{Balance: 1, ReqID: reqID}, &resp)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("balance: %w: %s (%s)", ErrBrokerRejected, resp.Error.Message, resp.Error.Code)
	}
	if resp.Balance == nil {
		return nil, fmt.Errorf("balance: empty response")
	}

	return &BalanceInfo{
		Balance:  resp.Balance.Balance,
		Currency: resp.Balance.Currency,
	}, nil
}

// contractTypes are the open-position types included in unrealized P&L.
var contractTypes = []string{"CALL", "PUT", "MULTUP", "MULTDOWN"}

// Portfolio returns the open contracts of the authorized account.
func (s *wsSession) Portfolio(ctx context.Context) ([]Position, error) {
	reqID := s.reqID.Add(1)

	var resp portfolioResponse
	err := s.roundTrip(ctx, reqID, portfolioRequest{Portfolio: 1, ContractType: contractTypes, ReqID: reqID}, &resp)
	if err != nil {
		return nil, fmt.Errorf("portfolio: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("portfolio: %w: %s (%s)", ErrBrokerRejected, resp.Error.Message, resp.Error.Code)
	}
	if resp.Portfolio == nil {
		return nil, nil
	}

	positions := make([]Position, 0, len(resp.Portfolio.Contracts))
	for _, c := range resp.Portfolio.Contracts {
		positions = append(positions, Position{
			ContractID: c.ContractID,
			BuyPrice:   c.BuyPrice,
			BidPrice:   c.BidPrice,
		})
	}
	return positions, nil
}

// Close closes the underlying connection.
func (s *wsSession) Close() error {
	return s.conn.Close()
}

// roundTrip writes one request and reads frames until the response carrying
// reqID arrives. out must carry ReqID and Error fields via envelope.
func (s *wsSession) roundTrip(ctx context.Context, reqID uint64, req any, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeDeadline := time.Now().Add(s.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(writeDeadline) {
		writeDeadline = d
	}
	if err := s.conn.SetWriteDeadline(writeDeadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	readDeadline := time.Now().Add(s.config.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(readDeadline) {
		readDeadline = d
	}
	if err := s.conn.SetReadDeadline(readDeadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		var envelope struct {
			ReqID uint64 `json:"req_id"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}
		if envelope.ReqID != reqID {
			// Unsolicited frame (subscription echo, heartbeat).
			continue
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

var _ Session = (*wsSession)(nil)
