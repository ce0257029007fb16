package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/peerflex/peerflex/internal/backend"
	"go.uber.org/zap"
)

// ConnectionState is one of three mutually exclusive states per user pair.
type ConnectionState string

const (
	NotConnected ConnectionState = "not_connected"
	Pending      ConnectionState = "pending"
	Connected    ConnectionState = "connected"
)

// ConnectionStatus describes the relation between the signed-in user and one
// other user. SentByMe is meaningful only in the Pending state.
type ConnectionStatus struct {
	State     ConnectionState
	SentByMe  bool
	RequestID string
}

// ConnectionService manages connection requests. Every transition performs
// the remote mutation and then re-derives status from a fresh query, trading
// a round trip for never diverging from the server.
type ConnectionService struct {
	client *backend.Client
	logger *zap.Logger
}

// NewConnectionService creates a connection service.
func NewConnectionService(client *backend.Client, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{client: client, logger: logger}
}

type connectionRow struct {
	ID          backend.FlexID `json:"id"`
	RequesterID backend.FlexID `json:"requester_id"`
	AddresseeID backend.FlexID `json:"addressee_id"`
	Status      string         `json:"status"`
}

// Status derives the current connection state against another user.
func (s *ConnectionService) Status(ctx context.Context, otherUserID string) (ConnectionStatus, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return ConnectionStatus{}, err
	}

	row, sentByMe, err := s.findRow(ctx, session.UserID, otherUserID)
	if err != nil {
		return ConnectionStatus{}, err
	}
	if row == nil {
		return ConnectionStatus{State: NotConnected}, nil
	}

	st := ConnectionStatus{RequestID: row.ID.String(), SentByMe: sentByMe}
	switch row.Status {
	case "accepted":
		st.State = Connected
	case "pending":
		st.State = Pending
	default:
		s.logger.Warn("unknown connection status",
			zap.String("id", row.ID.String()),
			zap.String("status", row.Status))
		st.State = NotConnected
	}
	return st, nil
}

// SendRequest creates a pending request toward another user.
func (s *ConnectionService) SendRequest(ctx context.Context, otherUserID string) (ConnectionStatus, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return ConnectionStatus{}, err
	}

	_, err = s.client.Insert(ctx, "connections", map[string]string{
		"requester_id": session.UserID,
		"addressee_id": otherUserID,
		"status":       "pending",
	})
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("send request: %w", err)
	}
	return s.Status(ctx, otherUserID)
}

// AcceptRequest accepts a request the other user sent.
func (s *ConnectionService) AcceptRequest(ctx context.Context, otherUserID string) (ConnectionStatus, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return ConnectionStatus{}, err
	}

	_, err = s.client.Update(ctx, "connections",
		[]backend.Filter{
			backend.Eq("requester_id", otherUserID),
			backend.Eq("addressee_id", session.UserID),
			backend.Eq("status", "pending"),
		},
		map[string]string{"status": "accepted"},
	)
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("accept request: %w", err)
	}
	return s.Status(ctx, otherUserID)
}

// RejectRequest removes a pending request the other user sent.
func (s *ConnectionService) RejectRequest(ctx context.Context, otherUserID string) (ConnectionStatus, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return ConnectionStatus{}, err
	}

	err = s.client.Delete(ctx, "connections", []backend.Filter{
		backend.Eq("requester_id", otherUserID),
		backend.Eq("addressee_id", session.UserID),
		backend.Eq("status", "pending"),
	})
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("reject request: %w", err)
	}
	return s.Status(ctx, otherUserID)
}

// WithdrawRequest removes a pending request the signed-in user sent.
func (s *ConnectionService) WithdrawRequest(ctx context.Context, otherUserID string) (ConnectionStatus, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return ConnectionStatus{}, err
	}

	err = s.client.Delete(ctx, "connections", []backend.Filter{
		backend.Eq("requester_id", session.UserID),
		backend.Eq("addressee_id", otherUserID),
		backend.Eq("status", "pending"),
	})
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("withdraw request: %w", err)
	}
	return s.Status(ctx, otherUserID)
}

// AcceptRequestByID accepts a pending request by its row id.
func (s *ConnectionService) AcceptRequestByID(ctx context.Context, requestID string) (ConnectionStatus, error) {
	row, err := s.rowByID(ctx, requestID)
	if err != nil {
		return ConnectionStatus{}, err
	}
	return s.AcceptRequest(ctx, row.RequesterID.String())
}

// RejectRequestByID removes a pending request by its row id.
func (s *ConnectionService) RejectRequestByID(ctx context.Context, requestID string) (ConnectionStatus, error) {
	row, err := s.rowByID(ctx, requestID)
	if err != nil {
		return ConnectionStatus{}, err
	}
	return s.RejectRequest(ctx, row.RequesterID.String())
}

func (s *ConnectionService) rowByID(ctx context.Context, requestID string) (*connectionRow, error) {
	rows, err := s.client.Query(ctx, "connections", backend.QueryOptions{
		Filters: []backend.Filter{backend.Eq("id", requestID)},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("connection %q: %w", requestID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("connection %q: not found", requestID)
	}
	var row connectionRow
	if err := json.Unmarshal(rows[0], &row); err != nil {
		return nil, fmt.Errorf("connection %q: decode row: %w", requestID, err)
	}
	return &row, nil
}

// ListPending returns all pending requests addressed to the signed-in user.
func (s *ConnectionService) ListPending(ctx context.Context) ([]ConnectionStatus, error) {
	session, err := s.client.RequireSession()
	if err != nil {
		return nil, err
	}

	rows, err := s.client.Query(ctx, "connections", backend.QueryOptions{
		Filters: []backend.Filter{
			backend.Eq("addressee_id", session.UserID),
			backend.Eq("status", "pending"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	out := make([]ConnectionStatus, 0, len(rows))
	for _, raw := range rows {
		var row connectionRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("list pending: decode row: %w", err)
		}
		out = append(out, ConnectionStatus{State: Pending, SentByMe: false, RequestID: row.ID.String()})
	}
	return out, nil
}

// findRow looks for the connection row in either direction.
func (s *ConnectionService) findRow(ctx context.Context, myID, otherID string) (*connectionRow, bool, error) {
	directions := []struct {
		requester, addressee string
		sentByMe             bool
	}{
		{myID, otherID, true},
		{otherID, myID, false},
	}
	for _, d := range directions {
		rows, err := s.client.Query(ctx, "connections", backend.QueryOptions{
			Filters: []backend.Filter{
				backend.Eq("requester_id", d.requester),
				backend.Eq("addressee_id", d.addressee),
			},
			Limit: 1,
		})
		if err != nil {
			return nil, false, fmt.Errorf("connection status: %w", err)
		}
		if len(rows) == 0 {
			continue
		}
		var row connectionRow
		if err := json.Unmarshal(rows[0], &row); err != nil {
			return nil, false, fmt.Errorf("connection status: decode row: %w", err)
		}
		return &row, d.sentByMe, nil
	}
	return nil, false, nil
}
