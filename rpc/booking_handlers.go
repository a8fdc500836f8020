package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ubook/catalog"
	"ubook/native/booking"
)

type bookingCreateParams struct {
	Guest           string `json:"guest"`
	AccommodationID string `json:"accommodationId"`
	CheckIn         int64  `json:"checkIn"`
	CheckOut        int64  `json:"checkOut"`
	TotalAmount     string `json:"totalAmount"`
}

type bookingDepositParams struct {
	ID    uint64 `json:"id"`
	From  string `json:"from"`
	Value string `json:"value"`
}

type bookingActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type bookingCancelParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
	Reason string `json:"reason"`
}

type bookingIDParams struct {
	ID uint64 `json:"id"`
}

type bookingGuestParams struct {
	Guest string `json:"guest"`
}

type bookingEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	After  int64  `json:"after,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type catalogIDParams struct {
	ID string `json:"id"`
}

type bookingCreateResult struct {
	BookingID uint64 `json:"bookingId"`
	TxHash    string `json:"txHash"`
}

type transitionResult struct {
	TxHash string `json:"txHash"`
}

type nextIDResult struct {
	NextBookingID uint64 `json:"nextBookingId"`
}

type feeBpsResult struct {
	FeeBps uint32 `json:"feeBps"`
}

// bookingJSON mirrors the canonical record for RPC consumers; amounts travel
// as decimal base-unit strings.
type bookingJSON struct {
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

type catalogEntryJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Location      string `json:"location"`
	PricePerNight string `json:"pricePerNight"`
	Available     bool   `json:"available"`
}

func decodeParams(req *RPCRequest, out interface{}) *handlerError {
	if len(req.Params) != 1 {
		return errInvalidParams("exactly one parameter object expected", nil)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return errInvalidParams("invalid parameter object", err.Error())
	}
	return nil
}

func parseAddressParam(raw, field string) (common.Address, *handlerError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, errInvalidParams(field+" is required", nil)
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, errInvalidParams("invalid "+field+" address", raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmountParam(raw, field string) (*big.Int, *handlerError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, errInvalidParams("invalid "+field+" amount", raw)
	}
	return amount, nil
}

// mapEngineError translates engine sentinels onto protocol error codes.
func mapEngineError(err error) *handlerError {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		return &handlerError{HTTPStatus: http.StatusNotFound, Code: codeBookingNotFound, Message: "booking not found"}
	case errors.Is(err, booking.ErrUnauthorized):
		return &handlerError{HTTPStatus: http.StatusForbidden, Code: codeBookingForbidden, Message: err.Error()}
	case errors.Is(err, booking.ErrInvalidState), errors.Is(err, booking.ErrOverDeposit):
		return &handlerError{HTTPStatus: http.StatusConflict, Code: codeBookingConflict, Message: err.Error()}
	case errors.Is(err, booking.ErrInvalidDateRange), errors.Is(err, booking.ErrInvalidAmount):
		return &handlerError{HTTPStatus: http.StatusBadRequest, Code: codeBookingInvalidParams, Message: err.Error()}
	default:
		return &handlerError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
	}
}

func (s *Server) handleBookingCreate(req *RPCRequest) (interface{}, *handlerError) {
	var params bookingCreateParams
	if errObj := decodeParams(req, &params); errObj != nil {
		return nil, errObj
	}
	guest, errObj := parseAddressParam(params.Guest, "guest")
	if errObj != nil {
		return nil, errObj
	}
	total, errObj := parseAmountParam(params.TotalAmount, "totalAmount")
	if errObj != nil {
		return nil, errObj
	}
	if errObj := s.checkCatalog(params.AccommodationID, params.CheckIn, params.CheckOut, total); errObj != nil {
		return nil, errObj
	}
	created, err := s.engine.CreateBooking(guest, params.AccommodationID, params.CheckIn, params.CheckOut, total)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return bookingCreateResult{BookingID: created.ID, TxHash: s.txHash(req.Method, req.Params[0])}, nil
}

// checkCatalog cross-checks a creation intent against the accommodation
// reference data: the listing must exist, be available, and the submitted
// total must equal nights x nightly rate. Totals are computed, never caller
// chosen.
func (s *Server) checkCatalog(accommodationID string, checkIn, checkOut int64, total *big.Int) *handlerError {
	if s.catalog == nil {
		return nil
	}
	entry, ok := s.catalog.Get(accommodationID)
	if !ok {
		return &handlerError{HTTPStatus: http.StatusNotFound, Code: codeBookingNotFound, Message: "accommodation not found", Data: accommodationID}
	}
	if !entry.Available {
		return &handlerError{HTTPStatus: http.StatusConflict, Code: codeBookingConflict, Message: "accommodation not available", Data: accommodationID}
	}
	nights, err := booking.ComputeNights(checkIn, checkOut)
	if err != nil {
		return mapEngineError(err)
	}
	expected, err := booking.ComputeTotal(nights, entry.PricePerNight)
	if err != nil {
		return mapEngineError(err)
	}
	if total == nil || total.Cmp(expected) != 0 {
		return errInvalidParams("totalAmount does not match nights x nightly rate", expected.String())
	}
	return nil
}

func (s *Server) handleBookingDeposit(req *RPCRequest) (interface{}, *handlerError) {
	var params bookingDepositParams
	if errObj := decodeParams(req, &params); errObj != nil {
		return nil, errObj
	}
	from, errObj := parseAddressParam(params.From, "from")
	if errObj != nil {
		return nil, errObj
	}
	value, errObj := parseAmountParam(params.Value, "value")
	if errObj != nil {
		return nil, errObj
	}
	if err := s.engine.Deposit(params.ID, from, value); err != nil {
		return nil, mapEngineError(err)
	}
	return transitionResult{TxHash: s.txHash(req.Method, req.Params[0])}, nil
}

func (s *Server) handleBookingConfirm(req *RPCRequest) (interface{}, *handlerError) {
	var params bookingActorParams
	if errObj := decodeParams(req, &params); errObj != nil {
		return nil, errObj
	}
	caller, errObj := parseAddressParam(params.Caller, "caller")
	if errObj != nil {
		return nil, errObj
	}
	if err := s.engine.Confirm(params.ID, caller); err != nil {
		return nil, mapEngineError(err)
	}
	return transitionResult{TxHash: s.txHash(req.Method, req.Params[0])}, nil
}

func (s *Server) handleBookingComplete(req *RPCRequest) (interface{}, *handlerError) {
	var params bookingActorParams
	if errObj := decodeParams(req, &params); errObj != nil {
		return nil, errObj
	}
	caller, errObj := parseAddressParam(params.Caller, "caller")
	if errObj != nil {
		return nil, errObj
	}
	if err := s.engine.Complete(params.ID, caller); err != nil {
		return nil, mapEngineError(err)
	}
	return transitionResult{TxHash: s.txHash(req.Method, req.Params[0])}, nil
}

func (s *Server) handleBookingCancel(req *RPCRequest) (interface{}, *handlerError) {
	var params bookingCancelParams
	if errObj := decodeParams(req, &params); errObj != nil {
		return nil, errObj
	}
	caller, errObj := parseAddressParam(params.Caller, "caller")
	if errObj != nil {
		return nil, errObj
	}
	if err := s.engine.Cancel(params.ID, caller, params.Reason); err != nil {
		return nil, mapEngineError(err)
	}
	return transitionResult{TxHash: s.txHash(req.Method, req.Params[0])}, nil
}

func (s *Server) handleBookingGet(req *RPCRequest) (interface{}, *handlerError) {
	var params bookingIDParams
	if errObj := decodeParams(req, &params); errObj != nil {
		return nil, errObj
	}
	// Unknown identifiers resolve to the zero-value record, matching the
	// contract read semantics.
	b, ok := s.engine.Get(params.ID)
	if !ok {
		return zeroBookingJSON(), nil
	}
	return formatBooking(b), nil
}

func (s *Server) handleBookingList(req *RPCRequest) (interface{}, *handlerError) {
	var params bookingGuestParams
	if errObj := decodeParams(req, &params); errObj != nil {
		return nil, errObj
	}
	guest, errObj := parseAddressParam(params.Guest, "guest")
	if errObj != nil {
		return nil, errObj
	}
	if s.lister == nil {
		return []bookingJSON{}, nil
	}
	records, err := s.lister.BookingsByGuest(guest)
	if err != nil {
		return nil, &handlerError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
	}
	out := make([]bookingJSON, 0, len(records))
	for _, b := range records {
		out = append(out, formatBooking(b))
	}
	return out, nil
}

func (s *Server) handleBookingNextID(_ *RPCRequest) (interface{}, *handlerError) {
	return nextIDResult{NextBookingID: s.engine.NextBookingID()}, nil
}

func (s *Server) handleBookingFeeBps(_ *RPCRequest) (interface{}, *handlerError) {
	return feeBpsResult{FeeBps: s.engine.PlatformFeeBps()}, nil
}

func (s *Server) handleBookingEvents(req *RPCRequest) (interface{}, *handlerError) {
	params := bookingEventsParams{Prefix: "booking."}
	if len(req.Params) > 0 {
		if errObj := decodeParams(req, &params); errObj != nil {
			return nil, errObj
		}
		if strings.TrimSpace(params.Prefix) == "" {
			params.Prefix = "booking."
		}
	}
	if s.events == nil {
		return []interface{}{}, nil
	}
	return s.events.List(params.Prefix, params.After, params.Limit), nil
}

func (s *Server) handleCatalogGet(req *RPCRequest) (interface{}, *handlerError) {
	var params catalogIDParams
	if errObj := decodeParams(req, &params); errObj != nil {
		return nil, errObj
	}
	if s.catalog == nil {
		return nil, &handlerError{HTTPStatus: http.StatusNotFound, Code: codeBookingNotFound, Message: "catalog not configured"}
	}
	entry, ok := s.catalog.Get(params.ID)
	if !ok {
		return nil, &handlerError{HTTPStatus: http.StatusNotFound, Code: codeBookingNotFound, Message: "accommodation not found", Data: params.ID}
	}
	return formatCatalogEntry(entry), nil
}

func (s *Server) handleCatalogList(_ *RPCRequest) (interface{}, *handlerError) {
	if s.catalog == nil {
		return []catalogEntryJSON{}, nil
	}
	entries := s.catalog.List()
	out := make([]catalogEntryJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, formatCatalogEntry(entry))
	}
	return out, nil
}

func formatBooking(b *booking.Booking) bookingJSON {
	if b == nil {
		return zeroBookingJSON()
	}
	return bookingJSON{
		ID:              b.ID,
		Guest:           strings.ToLower(b.Guest.Hex()),
		AccommodationID: b.AccommodationID,
		CheckIn:         b.CheckIn,
		CheckOut:        b.CheckOut,
		TotalAmount:     b.TotalAmount.String(),
		DepositedAmount: b.DepositedAmount.String(),
		Status:          b.Status.String(),
		IsCompleted:     b.Completed(),
		CreatedAt:       b.CreatedAt,
		CancelReason:    b.CancelReason,
	}
}

func zeroBookingJSON() bookingJSON {
	return bookingJSON{
		Guest:           strings.ToLower(common.Address{}.Hex()),
		TotalAmount:     "0",
		DepositedAmount: "0",
		Status:          booking.StatusPending.String(),
	}
}

func formatCatalogEntry(entry catalog.Entry) catalogEntryJSON {
	return catalogEntryJSON{
		ID:            entry.ID,
		Name:          entry.Name,
		Type:          entry.Type,
		Location:      entry.Location,
		PricePerNight: entry.PricePerNight.String(),
		Available:     entry.Available,
	}
}
