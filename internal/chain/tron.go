package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tokengate/tokengate/internal/client"
)

// TronIndexer reads TRC20 transfers from a trongrid-compatible API.
type TronIndexer struct {
	baseURL string
	symbol  string
}

func NewTronIndexer(baseURL, symbol string) *TronIndexer {
	return &TronIndexer{baseURL: baseURL, symbol: symbol}
}

type tronTRC20Response struct {
	Data []struct {
		TransactionID string `json:"transaction_id"`
		To            string `json:"to"`
		Value         string `json:"value"`
		TokenInfo     struct {
			Symbol   string `json:"symbol"`
			Decimals int    `json:"decimals"`
		} `json:"token_info"`
	} `json:"data"`
}

func (t *TronIndexer) IncomingTransfers(ctx context.Context, address string) ([]Transfer, error) {
	httpClient, err := client.GetHTTPClientSystemProxy(false)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?only_confirmed=true&only_to=true&limit=50",
		t.baseURL, address)
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
		return nil, fmt.Errorf("trongrid returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload tronTRC20Response
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse trongrid response: %w", err)
	}

	transfers := make([]Transfer, 0, len(payload.Data))
	for _, tx := range payload.Data {
		if tx.TokenInfo.Symbol != t.symbol {
			continue
		}
		raw, err := strconv.ParseInt(tx.Value, 10, 64)
		if err != nil {
			continue
		}
		decimals := tx.TokenInfo.Decimals
		if decimals <= 0 {
			decimals = 6
		}
		divisor := 1.0
		for i := 0; i < decimals; i++ {
			divisor *= 10
		}
		transfers = append(transfers, Transfer{
			TxHash: tx.TransactionID,
			Amount: float64(raw) / divisor,
			// only_confirmed limits results to solidified blocks, which on
			// tron means 19+ confirmations.
			Confirmations: 19,
		})
	}
	return transfers, nil
}
