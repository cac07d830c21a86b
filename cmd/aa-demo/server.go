package main

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/smartaccount/internal/account"
	"github.com/R3E-Network/smartaccount/internal/metrics"
	"github.com/R3E-Network/smartaccount/internal/middleware"
)

type accountView struct {
	Address      string `json:"address"`
	Owner        string `json:"owner"`
	Orchestrator string `json:"orchestrator"`
	Balance      string `json:"balance"`
	Deposit      string `json:"deposit"`
	Nonce        uint64 `json:"nonce"`
	TokenBalance string `json:"token_balance"`
}

// router builds the read-only API. A non-positive rps disables rate limiting.
func (d *demo) router(rps float64) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{address}", d.handleAccount).Methods(http.MethodGet)
	r.Use(middleware.Logging(d.log.Named("http")))

	var h http.Handler = r
	if rps > 0 {
		h = middleware.NewRateLimiter(rps, int(rps)+1, d.log.Named("http")).Handler(h)
	}
	return metrics.InstrumentHandler(h)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *demo) handleAccount(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid address"})
		return
	}
	addr := common.HexToAddress(raw)

	c, ok := d.ledger.ContractAt(addr)
	acct, isAccount := c.(*account.Account)
	if !ok || !isAccount {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}

	writeJSON(w, http.StatusOK, accountView{
		Address:      addr.Hex(),
		Owner:        acct.Owner().Hex(),
		Orchestrator: acct.OrchestratorAddress().Hex(),
		Balance:      d.ledger.BalanceOf(addr).String(),
		Deposit:      d.ep.DepositOf(addr).String(),
		Nonce:        d.ep.NonceOf(addr),
		TokenBalance: d.tok.BalanceOf(addr).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
