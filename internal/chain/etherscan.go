package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/tokengate/tokengate/internal/client"
)

// EtherscanIndexer reads ETH transfers from an etherscan-compatible API.
type EtherscanIndexer struct {
	baseURL string
}

func NewEtherscanIndexer(baseURL string) *EtherscanIndexer {
	return &EtherscanIndexer{baseURL: baseURL}
}

type etherscanResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

type etherscanTx struct {
	Hash          string `json:"hash"`
	To            string `json:"to"`
	Value         string `json:"value"` // wei
	Confirmations string `json:"confirmations"`
	IsError       string `json:"isError"`
}

func (e *EtherscanIndexer) IncomingTransfers(ctx context.Context, address string) ([]Transfer, error) {
	httpClient, err := client.GetHTTPClientSystemProxy(false)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s?module=account&action=txlist&address=%s&sort=desc&page=1&offset=50",
		e.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("etherscan returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload etherscanResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse etherscan response: %w", err)
	}
	// status "0" with "No transactions found" is a valid empty result.
	var txs []etherscanTx
	if err := json.Unmarshal(payload.Result, &txs); err != nil {
		if payload.Status == "0" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse etherscan result: %w", err)
	}

	transfers := make([]Transfer, 0, len(txs))
	for _, tx := range txs {
		if !strings.EqualFold(tx.To, address) || tx.IsError == "1" {
			continue
		}
		amount, ok := weiToEther(tx.Value)
		if !ok || amount <= 0 {
			continue
		}
		confirmations, _ := strconv.ParseInt(tx.Confirmations, 10, 64)
		transfers = append(transfers, Transfer{
			TxHash:        tx.Hash,
			Amount:        amount,
			Confirmations: confirmations,
		})
	}
	return transfers, nil
}

func weiToEther(value string) (float64, bool) {
	wei, ok := new(big.Float).SetString(value)
	if !ok {
		return 0, false
	}
	ether, _ := new(big.Float).Quo(wei, big.NewFloat(1e18)).Float64()
	return ether, true
}
