package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// fakeBrokerServer answers authorize/balance/portfolio the way the real API
// does, keyed off a single valid token.
func fakeBrokerServer(t *testing.T, validToken string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			reqID, _ := req["req_id"].(float64)
			resp := map[string]any{"req_id": reqID}

			switch {
			case req["authorize"] != nil:
				resp["msg_type"] = "authorize"
				if req["authorize"] != validToken {
					resp["error"] = map[string]any{"code": "InvalidToken", "message": "The token is invalid."}
				} else {
					resp["authorize"] = map[string]any{"loginid": "CR90001", "is_virtual": 0, "currency": "USD"}
				}
			case req["balance"] != nil:
				// An unsolicited frame before the answer; clients must skip it.
				_ = conn.WriteJSON(map[string]any{"msg_type": "ping"})
				resp["msg_type"] = "balance"
				resp["balance"] = map[string]any{"balance": 10250.50, "currency": "USD"}
			case req["portfolio"] != nil:
				resp["msg_type"] = "portfolio"
				resp["portfolio"] = map[string]any{"contracts": []map[string]any{
					{"contract_id": 11, "buy_price": 100.0, "bid_price": 150.25},
					{"contract_id": 12, "buy_price": 200.0, "bid_price": 180.0},
				}}
			default:
				resp["error"] = map[string]any{"code": "UnrecognisedRequest", "message": "Unrecognised request."}
			}

			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSSession_AuthorizeBalancePortfolio(t *testing.T) {
	server := fakeBrokerServer(t, "good-token")
	defer server.Close()

	dialer := NewWSDialer(wsURL(server), nil)
	ctx := context.Background()

	session, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer session.Close()

	info, err := session.Authorize(ctx, "good-token")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if info.LoginID != "CR90001" || info.IsVirtual {
		t.Errorf("unexpected account info: %+v", info)
	}

	balance, err := session.Balance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Balance.Equal(decimal.RequireFromString("10250.5")) {
		t.Errorf("balance = %s, want 10250.5", balance.Balance)
	}
	if balance.Currency != "USD" {
		t.Errorf("currency = %q, want USD", balance.Currency)
	}

	positions, err := session.Portfolio(ctx)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(positions))
	}
	if !UnrealizedPnL(positions).Equal(decimal.RequireFromString("30.25")) {
		t.Errorf("unrealized = %s, want 30.25", UnrealizedPnL(positions))
	}
}

func TestWSSession_AuthorizeRejected(t *testing.T) {
	server := fakeBrokerServer(t, "good-token")
	defer server.Close()

	dialer := NewWSDialer(wsURL(server), nil)
	ctx := context.Background()

	session, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer session.Close()

	_, err = session.Authorize(ctx, "bad-token")
	if !errors.Is(err, ErrBrokerRejected) {
		t.Fatalf("authorize error = %v, want ErrBrokerRejected", err)
	}
	if !strings.Contains(err.Error(), "InvalidToken") {
		t.Errorf("error %q does not carry the broker code", err)
	}
}

func TestWSDialer_DialUnreachable(t *testing.T) {
	dialer := NewWSDialer("ws://127.0.0.1:1/ws", nil)
	if _, err := dialer.Dial(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestDecimalFieldsDecode(t *testing.T) {
	// Broker payloads carry numbers, not strings; decimal must accept both.
	var resp balanceResponse
	err := json.Unmarshal([]byte(`{"msg_type":"balance","req_id":1,"balance":{"balance":9999.99,"currency":"USD"}}`), &resp)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Balance.Balance.Equal(decimal.RequireFromString("9999.99")) {
		t.Errorf("balance = %s, want 9999.99", resp.Balance.Balance)
	}
}
