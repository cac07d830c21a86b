package main

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/smartaccount/internal/config"
	"github.com/R3E-Network/smartaccount/internal/keys"
	"github.com/R3E-Network/smartaccount/pkg/logger"
)

func newTestDemo(t *testing.T, network string) *demo {
	t.Helper()
	n, err := config.NewProvider().Network(network)
	require.NoError(t, err)
	d, err := newDemo(n, keys.DevMnemonic, logger.NewNop())
	require.NoError(t, err)
	return d
}

func TestDemo_MintOnEveryNetwork(t *testing.T) {
	for _, name := range config.NewProvider().Names() {
		t.Run(name, func(t *testing.T) {
			d := newTestDemo(t, name)

			receipt, err := d.mint(context.Background(), big.NewInt(1e18))
			require.NoError(t, err)
			require.True(t, receipt.Success, receipt.Reason)

			assert.Equal(t, big.NewInt(1e18), d.tok.BalanceOf(d.acctAddr))
			assert.Equal(t, receipt.ActualGasCost, d.ledger.BalanceOf(d.operator))
			assert.Equal(t, uint64(1), d.ep.NonceOf(d.acctAddr))
		})
	}
}

func TestDemo_SecondMintUsesNextNonce(t *testing.T) {
	d := newTestDemo(t, "local")

	for i := 0; i < 2; i++ {
		receipt, err := d.mint(context.Background(), big.NewInt(1))
		require.NoError(t, err)
		require.True(t, receipt.Success, receipt.Reason)
	}
	assert.Equal(t, big.NewInt(2), d.tok.BalanceOf(d.acctAddr))
}

func TestRouter(t *testing.T) {
	d := newTestDemo(t, "local")
	_, err := d.mint(context.Background(), big.NewInt(7))
	require.NoError(t, err)

	srv := httptest.NewServer(d.router(0))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/accounts/" + d.acctAddr.Hex())
	require.NoError(t, err)
	var view accountView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, d.owner.Hex(), view.Owner)
	assert.Equal(t, d.network.Orchestrator.Hex(), view.Orchestrator)
	assert.Equal(t, "7", view.TokenBalance)
	assert.Equal(t, uint64(1), view.Nonce)

	resp, err = http.Get(srv.URL + "/accounts/not-an-address")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/accounts/" + d.operator.Hex())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRun_WithoutServer(t *testing.T) {
	t.Setenv("AA_NETWORK", "sepolia")
	err := run(context.Background(), "", "", "", 0, logger.NewNop())
	assert.NoError(t, err)
}

func TestRouter_RateLimited(t *testing.T) {
	d := newTestDemo(t, "local")
	srv := httptest.NewServer(d.router(0.001))
	defer srv.Close()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}
