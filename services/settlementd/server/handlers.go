package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"invokeledger/native/access"
	"invokeledger/native/bank"
	"invokeledger/native/common"
	"invokeledger/native/tips"
	"invokeledger/services/settlementd/auth"
	"invokeledger/services/settlementd/stream"
)

const maxBodyBytes = 1 << 20

type poolResponse struct {
	AssetID      uint64   `json:"asset_id"`
	Fingerprint  string   `json:"fingerprint"`
	Total        string   `json:"total"`
	Claimed      bool     `json:"claimed"`
	ClaimedSeq   uint64   `json:"claimed_sequence,omitempty"`
	ClaimedBy    string   `json:"claimed_by,omitempty"`
	ClaimedAt    int64    `json:"claimed_at,omitempty"`
	CreatedAt    int64    `json:"created_at"`
	Contributors []string `json:"contributors"`
}

func poolView(p *tips.Pool) poolResponse {
	out := poolResponse{
		AssetID:      p.AssetID,
		Fingerprint:  ethcommon.Hash(p.Fingerprint).Hex(),
		Total:        amountString(p.Total),
		Claimed:      p.ClaimedSeq != 0,
		ClaimedSeq:   p.ClaimedSeq,
		ClaimedAt:    p.ClaimedAt,
		CreatedAt:    p.CreatedAt,
		Contributors: make([]string, 0, len(p.Contributors)),
	}
	if out.Claimed {
		out.ClaimedBy = formatAccount(p.ClaimedBy)
	}
	for _, c := range p.Contributors {
		out.Contributors = append(out.Contributors, formatAccount(c))
	}
	return out
}

type purchaseResponse struct {
	AssetID     uint64 `json:"asset_id"`
	Sequence    uint64 `json:"sequence"`
	Buyer       string `json:"buyer"`
	Amount      string `json:"amount"`
	PurchasedAt int64  `json:"purchased_at"`
}

func purchaseView(p *access.Purchase) purchaseResponse {
	return purchaseResponse{
		AssetID:     p.AssetID,
		Sequence:    p.Sequence,
		Buyer:       formatAccount(p.Buyer),
		Amount:      amountString(p.Amount),
		PurchasedAt: p.PurchasedAt,
	}
}

type amountResponse struct {
	Amount string `json:"amount"`
}

func (s *Server) tip(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		AssetID     uint64 `json:"asset_id"`
		Fingerprint string `json:"fingerprint"`
		Value       string `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fingerprint, err := parseFingerprint(req.Fingerprint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pool, err := s.module.Tip(r.Context(), caller, req.AssetID, fingerprint, value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, poolView(pool))
}

func (s *Server) claimTips(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		AssetID      uint64 `json:"asset_id"`
		Sequence     uint64 `json:"sequence"`
		MinimumTotal string `json:"minimum_total"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	minimum, err := parseOptionalAmount(req.MinimumTotal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pool, err := s.module.ClaimTips(r.Context(), caller, req.AssetID, req.Sequence, minimum)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, poolView(pool))
}

func (s *Server) withdrawTip(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		AssetID     uint64 `json:"asset_id"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fingerprint, err := parseFingerprint(req.Fingerprint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.module.WithdrawTip(r.Context(), caller, req.AssetID, fingerprint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) withdrawTips(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		AssetIDs     []uint64 `json:"asset_ids"`
		Fingerprints []string `json:"fingerprints"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fingerprints := make([][32]byte, 0, len(req.Fingerprints))
	for _, raw := range req.Fingerprints {
		fp, err := parseFingerprint(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		fingerprints = append(fingerprints, fp)
	}
	amount, err := s.module.WithdrawTips(r.Context(), caller, req.AssetIDs, fingerprints)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) setMinimumTip(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	assetID, err := uintParam(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.module.SetMinimumTip(r.Context(), caller, assetID, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) purchase(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		AssetID  uint64 `json:"asset_id"`
		Sequence uint64 `json:"sequence"`
		Value    string `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	record, err := s.module.Purchase(r.Context(), caller, req.AssetID, req.Sequence, value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchaseView(record))
}

func (s *Server) setPrice(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	assetID, err := uintParam(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	seq, err := uintParam(r, "seq")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Price string `json:"price"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.module.SetPrice(r.Context(), caller, assetID, seq, price); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(price)})
}

func (s *Server) withdrawEarnings(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.module.WithdrawEarnings(r.Context(), chi.URLParam(r, "ledger"), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) withdrawPlatformEarnings(w http.ResponseWriter, r *http.Request) {
	amount, err := s.module.WithdrawPlatformEarnings(r.Context(), chi.URLParam(r, "ledger"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Amount  string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := parseAccount(req.Account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.module.Deposit(r.Context(), account, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := s.module.Balance(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(balance)})
}

func (s *Server) setPause(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		writeErrorStatus(w, http.StatusNotImplemented, fmt.Errorf("pauses not configured"))
		return
	}
	var req struct {
		Paused bool `json:"paused"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	module := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "module")))
	switch module {
	case "tips", "access":
	default:
		s.writeError(w, r, badRequest("unknown module %q", module))
		return
	}
	s.pauses.Set(module, req.Paused)
	s.logger.Info("module pause updated", "module", module, "status", pausedLabel(req.Paused))
	writeJSON(w, http.StatusOK, map[string]interface{}{"module": module, "paused": req.Paused})
}

func pausedLabel(paused bool) string {
	if paused {
		return "paused"
	}
	return "active"
}

func (s *Server) recordOccurrence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID     uint64 `json:"asset_id"`
		Sequence    uint64 `json:"sequence"`
		Actor       string `json:"actor"`
		Fingerprint string `json:"fingerprint"`
		Timestamp   int64  `json:"timestamp"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Sequence == 0 {
		s.writeError(w, r, badRequest("sequence must be positive"))
		return
	}
	actor, err := parseAccount(req.Actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fingerprint, err := parseFingerprint(req.Fingerprint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	occ := common.Occurrence{Actor: actor, Fingerprint: fingerprint, Timestamp: req.Timestamp}
	if err := s.registry.RecordOccurrence(r.Context(), req.AssetID, req.Sequence, occ); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID     uint64 `json:"asset_id"`
		Sequence    uint64 `json:"sequence"`
		Fingerprint string `json:"fingerprint"`
		Timestamp   int64  `json:"timestamp"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fingerprint, err := parseFingerprint(req.Fingerprint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := common.Result{Fingerprint: fingerprint, Timestamp: req.Timestamp}
	if !res.Recorded() {
		s.writeError(w, r, badRequest("result requires a fingerprint or timestamp"))
		return
	}
	if err := s.registry.RecordResult(r.Context(), req.AssetID, req.Sequence, res); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setController(w http.ResponseWriter, r *http.Request) {
	assetID, err := uintParam(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Controller string `json:"controller"`
		Solvent    *bool  `json:"solvent"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	controller, err := parseAccount(req.Controller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	solvent := true
	if req.Solvent != nil {
		solvent = *req.Solvent
	}
	if err := s.registry.SetController(r.Context(), assetID, controller, solvent); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setSolvency(w http.ResponseWriter, r *http.Request) {
	assetID, err := uintParam(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Solvent bool `json:"solvent"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.SetSolvent(r.Context(), assetID, req.Solvent); err != nil {
		writeErrorStatus(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.module.Accounts()
	conveyors := make([]map[string]string, 0, len(accounts.Conveyors))
	for _, c := range accounts.Conveyors {
		conveyors = append(conveyors, map[string]string{
			"address":     formatAccount(c.Address),
			"destination": formatAccount(c.Destination),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"platform":        formatAccount(accounts.Platform),
		"tips_vault":      formatAccount(accounts.TipsVault),
		"tips_treasury":   formatOptionalAccount(accounts.TipsTreasury),
		"access_vault":    formatAccount(accounts.AccessVault),
		"access_treasury": formatOptionalAccount(accounts.AccessTreasury),
		"conveyors":       conveyors,
	})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.module.Balance(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) getMinimumTip(w http.ResponseWriter, r *http.Request) {
	assetID, err := uintParam(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.module.MinimumTip(r.Context(), assetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	assetID, err := uintParam(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fingerprint, err := parseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pool, ok, err := s.module.Pool(r.Context(), assetID, fingerprint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeErrorStatus(w, http.StatusNotFound, fmt.Errorf("pool not found"))
		return
	}
	writeJSON(w, http.StatusOK, poolView(pool))
}

func (s *Server) getPledge(w http.ResponseWriter, r *http.Request) {
	assetID, err := uintParam(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fingerprint, err := parseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := parseAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.module.Pledge(r.Context(), assetID, fingerprint, account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	assetID, err := uintParam(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	seq, err := uintParam(r, "seq")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := s.module.Price(r.Context(), assetID, seq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(price)})
}

func (s *Server) getPurchase(w http.ResponseWriter, r *http.Request) {
	assetID, err := uintParam(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	seq, err := uintParam(r, "seq")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	buyer, err := parseAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	record, ok, err := s.module.PurchaseRecord(r.Context(), assetID, seq, buyer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeErrorStatus(w, http.StatusNotFound, fmt.Errorf("purchase not found"))
		return
	}
	writeJSON(w, http.StatusOK, purchaseView(record))
}

func (s *Server) getEarnings(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.module.Earnings(r.Context(), chi.URLParam(r, "ledger"), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var after uint64
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, badRequest("invalid after cursor"))
			return
		}
		after = parsed
	}
	limit := 100
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, badRequest("invalid limit"))
			return
		}
		limit = parsed
	}
	rows, err := s.archive.List(r.Context(), after, strings.TrimSpace(query.Get("type")), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]stream.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := stream.FromRecord(row)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, msg)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func uintParam(r *http.Request, name string) (uint64, error) {
	value, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, badRequest("invalid %s", name)
	}
	return value, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, badRequest("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, badRequest("invalid amount %q", raw)
	}
	return amount, nil
}

func parseOptionalAmount(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(raw)
}

func parseAccount(raw string) ([20]byte, error) {
	account, err := bank.ParseAccount(raw)
	if err != nil {
		return [20]byte{}, badRequest("%v", err)
	}
	return account, nil
}

func parseFingerprint(raw string) ([32]byte, error) {
	hash, err := bank.ParseHash(raw)
	if err != nil {
		return [32]byte{}, badRequest("%v", err)
	}
	return hash, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAccount(addr [20]byte) string {
	return ethcommon.Address(addr).Hex()
}

func formatOptionalAccount(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return formatAccount(addr)
}
