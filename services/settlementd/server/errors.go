package server

import (
	"errors"
	"fmt"
	"net/http"

	"invokeledger/core/state"
	"invokeledger/native/access"
	"invokeledger/native/bank"
	"invokeledger/native/common"
	"invokeledger/native/earnings"
	"invokeledger/native/settlement"
	"invokeledger/native/tips"
	"invokeledger/services/settlementd/auth"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps settlement errors onto HTTP statuses: validation 400,
// authorization 403, state conflicts 409, insufficient value 402.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadRequest),
		errors.Is(err, tips.ErrInsufficientTip),
		errors.Is(err, tips.ErrUnevenLengths),
		errors.Is(err, tips.ErrInvalidAmount),
		errors.Is(err, access.ErrPriceNotSet),
		errors.Is(err, access.ErrInvalidAmount),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, state.ErrAmountOverflow),
		errors.Is(err, state.ErrNegativeAmount),
		errors.Is(err, settlement.ErrReservedAccount):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingCaller):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrNotKeeper),
		errors.Is(err, common.ErrModulePaused):
		return http.StatusForbidden
	case errors.Is(err, settlement.ErrUnknownLedger):
		return http.StatusNotFound
	case errors.Is(err, tips.ErrInvocationAlreadyClaimed),
		errors.Is(err, tips.ErrInvocationNotInvoked),
		errors.Is(err, tips.ErrTipNotFound),
		errors.Is(err, access.ErrAlreadyPurchased),
		errors.Is(err, access.ErrResponseDoesNotExist),
		errors.Is(err, common.ErrNotOwnedBySolventKeeper),
		errors.Is(err, earnings.ErrNoFundsAvailable),
		errors.Is(err, bank.ErrCallDepthExceeded):
		return http.StatusConflict
	case errors.Is(err, access.ErrInsufficientAmount),
		errors.Is(err, tips.ErrInsufficientTips),
		errors.Is(err, bank.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeErrorStatus(w, status, errors.New("internal error"))
		return
	}
	writeErrorStatus(w, status, err)
}
