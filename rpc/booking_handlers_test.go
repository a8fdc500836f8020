package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"ubook/catalog"
	"ubook/core/events"
	"ubook/native/booking"
	"ubook/storage/bookingdb"
)

var (
	testGuest    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testOperator = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func celo(n int64) *big.Int {
	unit, _ := new(big.Int).SetString("1000000000000000000", 10)
	return new(big.Int).Mul(big.NewInt(n), unit)
}

func newTestServer(t *testing.T, secret string) (*httptest.Server, *bookingdb.Store) {
	t.Helper()
	store, err := bookingdb.Open(filepath.Join(t.TempDir(), "bookings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.SeedBalance(testGuest, celo(1000)))

	engine := booking.NewEngine()
	engine.SetState(store)
	engine.SetOperator(testOperator)
	require.NoError(t, engine.SetPlatformFeeBps(500))
	recorder := events.NewRecorder(128)
	engine.SetEmitter(recorder)

	server := NewServer(engine, store, catalog.Default(), recorder, secret, nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func call(t *testing.T, ts *httptest.Server, token, method string, params interface{}) (*RPCResponse, int) {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return &decoded, resp.StatusCode
}

func decodeResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func createParams(checkInOffset int64) map[string]interface{} {
	checkIn := time.Now().Unix() + checkInOffset
	return map[string]interface{}{
		"guest":           testGuest.Hex(),
		"accommodationId": "1",
		"checkIn":         checkIn,
		"checkOut":        checkIn + 3*86400,
		"totalAmount":     celo(15).String(), // 3 nights at 5 CELO
	}
}

func TestBookingLifecycleOverRPC(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, status := call(t, ts, "", "booking_create", createParams(86400))
	require.Equal(t, http.StatusOK, status)
	var created struct {
		BookingID uint64 `json:"bookingId"`
		TxHash    string `json:"txHash"`
	}
	decodeResult(t, resp, &created)
	require.Equal(t, uint64(1), created.BookingID)
	require.Len(t, created.TxHash, 66)

	resp, _ = call(t, ts, "", "booking_deposit", map[string]interface{}{
		"id":    created.BookingID,
		"from":  testGuest.Hex(),
		"value": celo(15).String(),
	})
	require.Nil(t, resp.Error)

	resp, _ = call(t, ts, "", "booking_complete", map[string]interface{}{
		"id":     created.BookingID,
		"caller": testOperator.Hex(),
	})
	require.Nil(t, resp.Error)

	resp, _ = call(t, ts, "", "booking_get", map[string]interface{}{"id": created.BookingID})
	var got struct {
		Status      string `json:"status"`
		IsCompleted bool   `json:"isCompleted"`
		Deposited   string `json:"depositedAmount"`
	}
	decodeResult(t, resp, &got)
	require.Equal(t, "completed", got.Status)
	require.True(t, got.IsCompleted)

	resp, _ = call(t, ts, "", "booking_events", map[string]interface{}{})
	var recorded []events.RecordedEvent
	decodeResult(t, resp, &recorded)
	require.Len(t, recorded, 3)
	require.Equal(t, booking.EventTypeBookingCreated, recorded[0].Type)
	require.Equal(t, booking.EventTypeBookingDeposited, recorded[1].Type)
	require.Equal(t, booking.EventTypeFundsReleased, recorded[2].Type)
}

func TestBookingCreateRejectsTotalMismatch(t *testing.T) {
	ts, _ := newTestServer(t, "")

	params := createParams(86400)
	params["totalAmount"] = celo(10).String()
	resp, status := call(t, ts, "", "booking_create", params)
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeBookingInvalidParams, resp.Error.Code)
}

func TestBookingCreateUnknownAccommodation(t *testing.T) {
	ts, _ := newTestServer(t, "")

	params := createParams(86400)
	params["accommodationId"] = "99"
	resp, status := call(t, ts, "", "booking_create", params)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeBookingNotFound, resp.Error.Code)
}

func TestOverDepositMapsToConflict(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, _ := call(t, ts, "", "booking_create", createParams(86400))
	var created struct {
		BookingID uint64 `json:"bookingId"`
	}
	decodeResult(t, resp, &created)

	resp, status := call(t, ts, "", "booking_deposit", map[string]interface{}{
		"id":    created.BookingID,
		"from":  testGuest.Hex(),
		"value": celo(20).String(),
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeBookingConflict, resp.Error.Code)

	// No state change: the booking is still pending with nothing escrowed.
	resp, _ = call(t, ts, "", "booking_get", map[string]interface{}{"id": created.BookingID})
	var got struct {
		Status    string `json:"status"`
		Deposited string `json:"depositedAmount"`
	}
	decodeResult(t, resp, &got)
	require.Equal(t, "pending", got.Status)
	require.Equal(t, "0", got.Deposited)
}

func TestCancelRefundOverRPC(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, _ := call(t, ts, "", "booking_create", createParams(86400))
	var created struct {
		BookingID uint64 `json:"bookingId"`
	}
	decodeResult(t, resp, &created)

	resp, _ = call(t, ts, "", "booking_deposit", map[string]interface{}{
		"id":    created.BookingID,
		"from":  testGuest.Hex(),
		"value": celo(5).String(),
	})
	require.Nil(t, resp.Error)

	resp, _ = call(t, ts, "", "booking_cancel", map[string]interface{}{
		"id":     created.BookingID,
		"caller": testGuest.Hex(),
		"reason": "travel plans changed",
	})
	require.Nil(t, resp.Error)

	resp, _ = call(t, ts, "", "booking_events", map[string]interface{}{
		"prefix": booking.EventTypeBookingCancelled,
	})
	var recorded []events.RecordedEvent
	decodeResult(t, resp, &recorded)
	require.Len(t, recorded, 1)
	// 5 CELO at 500 bps: 0.25 CELO withheld.
	require.Equal(t, "250000000000000000", recorded[0].Attributes["fee"])
	require.Equal(t, "4750000000000000000", recorded[0].Attributes["refund"])
	require.Equal(t, "travel plans changed", recorded[0].Attributes["reason"])
}

func TestBookingGetUnknownReturnsZeroRecord(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, status := call(t, ts, "", "booking_get", map[string]interface{}{"id": 42})
	require.Equal(t, http.StatusOK, status)
	var got bookingJSON
	decodeResult(t, resp, &got)
	require.Zero(t, got.ID)
	require.Equal(t, "pending", got.Status)
	require.Equal(t, "0", got.TotalAmount)
}

func TestBookingListOrdersByCreation(t *testing.T) {
	ts, _ := newTestServer(t, "")

	for i := 0; i < 2; i++ {
		resp, _ := call(t, ts, "", "booking_create", createParams(int64(86400*(i+1))))
		require.Nil(t, resp.Error)
	}
	resp, _ := call(t, ts, "", "booking_list", map[string]interface{}{"guest": testGuest.Hex()})
	var listed []bookingJSON
	decodeResult(t, resp, &listed)
	require.Len(t, listed, 2)
	require.Equal(t, uint64(1), listed[0].ID)
	require.Equal(t, uint64(2), listed[1].ID)
}

func TestReadsAndMiscProtocol(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, _ := call(t, ts, "", "booking_nextId", nil)
	var next nextIDResult
	decodeResult(t, resp, &next)
	require.Equal(t, uint64(1), next.NextBookingID)

	resp, _ = call(t, ts, "", "booking_feeBps", nil)
	var fee feeBpsResult
	decodeResult(t, resp, &fee)
	require.Equal(t, uint32(500), fee.FeeBps)

	resp, _ = call(t, ts, "", "catalog_get", map[string]interface{}{"id": "2"})
	var entry catalogEntryJSON
	decodeResult(t, resp, &entry)
	require.Equal(t, "Bwindi Mountain Lodge", entry.Name)

	resp, status := call(t, ts, "", "unknown_method", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func signToken(t *testing.T, secret, scope string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthScopes(t *testing.T) {
	const secret = "test-secret"
	ts, _ := newTestServer(t, secret)

	// No token: mutating calls are rejected; reads stay open.
	resp, status := call(t, ts, "", "booking_create", createParams(86400))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp, status = call(t, ts, "", "booking_nextId", nil)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	writeToken := signToken(t, secret, ScopeWrite)
	resp, _ = call(t, ts, writeToken, "booking_create", createParams(86400))
	require.Nil(t, resp.Error)

	// Write scope does not unlock operator transitions.
	resp, status = call(t, ts, writeToken, "booking_complete", map[string]interface{}{
		"id":     1,
		"caller": testOperator.Hex(),
	})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeBookingForbidden, resp.Error.Code)

	// A token signed with the wrong secret is rejected outright.
	forged := signToken(t, "other-secret", ScopeOperate)
	_, status = call(t, ts, forged, "booking_cancel", map[string]interface{}{
		"id": 1, "caller": testGuest.Hex(), "reason": "x",
	})
	require.Equal(t, http.StatusUnauthorized, status)

	// Operator scope implies write.
	opToken := signToken(t, secret, ScopeOperate)
	resp, _ = call(t, ts, opToken, "booking_deposit", map[string]interface{}{
		"id":    1,
		"from":  testGuest.Hex(),
		"value": celo(15).String(),
	})
	require.Nil(t, resp.Error)
	resp, _ = call(t, ts, opToken, "booking_complete", map[string]interface{}{
		"id":     1,
		"caller": testOperator.Hex(),
	})
	require.Nil(t, resp.Error)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp, err := http.Get(fmt.Sprintf("%s/healthz", ts.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
