package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// NodeClient is a thin JSON-RPC client against the ubook node.
type NodeClient interface {
	BookingCreate(ctx context.Context, req CreateRequest) (*CreateResult, error)
	BookingDeposit(ctx context.Context, id uint64, from, value string) (string, error)
	BookingConfirm(ctx context.Context, id uint64, caller string) (string, error)
	BookingComplete(ctx context.Context, id uint64, caller string) (string, error)
	BookingCancel(ctx context.Context, id uint64, caller, reason string) (string, error)
	BookingGet(ctx context.Context, id uint64) (*BookingState, error)
	BookingsByGuest(ctx context.Context, guest string) ([]BookingState, error)
	NextBookingID(ctx context.Context) (uint64, error)
	PlatformFeeBps(ctx context.Context) (uint32, error)
	CatalogGet(ctx context.Context, id string) (*CatalogEntry, error)
	CatalogList(ctx context.Context) ([]CatalogEntry, error)
	FetchEvents(ctx context.Context, prefix string, afterSeq int64, limit int) ([]NodeEvent, error)
}

// RPCError is a failure reported by the node itself, as opposed to a transport
// error where the submission outcome is unknown.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

// RPCNodeClient implements NodeClient against the ubook JSON-RPC server.
type RPCNodeClient struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

func NewRPCNodeClient(baseURL, authToken string) *RPCNodeClient {
	return &RPCNodeClient{
		baseURL:   baseURL,
		authToken: authToken,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateRequest is the payload forwarded to booking_create.
type CreateRequest struct {
	Guest           string `json:"guest"`
	AccommodationID string `json:"accommodationId"`
	CheckIn         int64  `json:"checkIn"`
	CheckOut        int64  `json:"checkOut"`
	TotalAmount     string `json:"totalAmount"`
}

// CreateResult mirrors the node RPC result for booking_create.
type CreateResult struct {
	BookingID uint64 `json:"bookingId"`
	TxHash    string `json:"txHash"`
}

// BookingState mirrors the JSON returned by the node for booking_get.
type BookingState struct {
	ID              uint64 `json:"id"`
	Guest           string `json:"guest"`
	AccommodationID string `json:"accommodationId"`
	CheckIn         int64  `json:"checkIn"`
	CheckOut        int64  `json:"checkOut"`
	TotalAmount     string `json:"totalAmount"`
	DepositedAmount string `json:"depositedAmount"`
	Status          string `json:"status"`
	IsCompleted     bool   `json:"isCompleted"`
	CreatedAt       int64  `json:"createdAt"`
	CancelReason    string `json:"cancelReason,omitempty"`
}

// CatalogEntry mirrors the node's accommodation listing.
type CatalogEntry struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Location      string `json:"location"`
	PricePerNight string `json:"pricePerNight"`
	Available     bool   `json:"available"`
}

// NodeEvent represents an emitted booking event returned by the node.
type NodeEvent struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type transitionResult struct {
	TxHash string `json:"txHash"`
}

func (c *RPCNodeClient) BookingCreate(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	var result CreateResult
	if err := c.call(ctx, "booking_create", []interface{}{req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RPCNodeClient) BookingDeposit(ctx context.Context, id uint64, from, value string) (string, error) {
	params := map[string]interface{}{"id": id, "from": from, "value": value}
	var result transitionResult
	if err := c.call(ctx, "booking_deposit", []interface{}{params}, &result); err != nil {
		return "", err
	}
	return result.TxHash, nil
}

func (c *RPCNodeClient) BookingConfirm(ctx context.Context, id uint64, caller string) (string, error) {
	return c.transition(ctx, "booking_confirm", id, caller)
}

func (c *RPCNodeClient) BookingComplete(ctx context.Context, id uint64, caller string) (string, error) {
	return c.transition(ctx, "booking_complete", id, caller)
}

func (c *RPCNodeClient) BookingCancel(ctx context.Context, id uint64, caller, reason string) (string, error) {
	params := map[string]interface{}{"id": id, "caller": caller, "reason": reason}
	var result transitionResult
	if err := c.call(ctx, "booking_cancel", []interface{}{params}, &result); err != nil {
		return "", err
	}
	return result.TxHash, nil
}

func (c *RPCNodeClient) transition(ctx context.Context, method string, id uint64, caller string) (string, error) {
	params := map[string]interface{}{"id": id, "caller": caller}
	var result transitionResult
	if err := c.call(ctx, method, []interface{}{params}, &result); err != nil {
		return "", err
	}
	return result.TxHash, nil
}

func (c *RPCNodeClient) BookingGet(ctx context.Context, id uint64) (*BookingState, error) {
	var result BookingState
	if err := c.call(ctx, "booking_get", []interface{}{map[string]uint64{"id": id}}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RPCNodeClient) BookingsByGuest(ctx context.Context, guest string) ([]BookingState, error) {
	var result []BookingState
	if err := c.call(ctx, "booking_list", []interface{}{map[string]string{"guest": guest}}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *RPCNodeClient) NextBookingID(ctx context.Context) (uint64, error) {
	var result struct {
		NextBookingID uint64 `json:"nextBookingId"`
	}
	if err := c.call(ctx, "booking_nextId", nil, &result); err != nil {
		return 0, err
	}
	return result.NextBookingID, nil
}

func (c *RPCNodeClient) PlatformFeeBps(ctx context.Context) (uint32, error) {
	var result struct {
		FeeBps uint32 `json:"feeBps"`
	}
	if err := c.call(ctx, "booking_feeBps", nil, &result); err != nil {
		return 0, err
	}
	return result.FeeBps, nil
}

func (c *RPCNodeClient) CatalogGet(ctx context.Context, id string) (*CatalogEntry, error) {
	var result CatalogEntry
	if err := c.call(ctx, "catalog_get", []interface{}{map[string]string{"id": id}}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RPCNodeClient) CatalogList(ctx context.Context) ([]CatalogEntry, error) {
	var result []CatalogEntry
	if err := c.call(ctx, "catalog_list", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *RPCNodeClient) FetchEvents(ctx context.Context, prefix string, afterSeq int64, limit int) ([]NodeEvent, error) {
	params := map[string]interface{}{"after": afterSeq}
	if strings.TrimSpace(prefix) != "" {
		params["prefix"] = prefix
	}
	if limit > 0 {
		params["limit"] = limit
	}
	var result []NodeEvent
	if err := c.call(ctx, "booking_events", []interface{}{params}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *RPCNodeClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	buf, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("node rpc %s: status=%d undecodable body", method, resp.StatusCode)
	}
	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("node rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
