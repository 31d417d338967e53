package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tokengate/tokengate/internal/client"
)

// EsploraIndexer reads BTC transfers from an esplora-compatible API
// (blockstream.info, mempool.space).
type EsploraIndexer struct {
	baseURL string
}

func NewEsploraIndexer(baseURL string) *EsploraIndexer {
	return &EsploraIndexer{baseURL: baseURL}
}

type esploraTx struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
	Vout []struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"` // satoshis
	} `json:"vout"`
}

func (e *EsploraIndexer) IncomingTransfers(ctx context.Context, address string) ([]Transfer, error) {
	tipHeight, err := e.tipHeight(ctx)
	if err != nil {
		return nil, err
	}

	body, err := e.get(ctx, fmt.Sprintf("%s/address/%s/txs", e.baseURL, address))
	if err != nil {
		return nil, err
	}
	var txs []esploraTx
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("failed to parse esplora response: %w", err)
	}

	transfers := make([]Transfer, 0, len(txs))
	for _, tx := range txs {
		var sats int64
		for _, out := range tx.Vout {
			if out.ScriptPubKeyAddress == address {
				sats += out.Value
			}
		}
		if sats == 0 {
			continue
		}
		var confirmations int64
		if tx.Status.Confirmed && tx.Status.BlockHeight > 0 {
			confirmations = tipHeight - tx.Status.BlockHeight + 1
		}
		transfers = append(transfers, Transfer{
			TxHash:        tx.TxID,
			Amount:        float64(sats) / 1e8,
			Confirmations: confirmations,
		})
	}
	return transfers, nil
}

func (e *EsploraIndexer) tipHeight(ctx context.Context) (int64, error) {
	body, err := e.get(ctx, e.baseURL+"/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse tip height: %w", err)
	}
	return height, nil
}

func (e *EsploraIndexer) get(ctx context.Context, url string) ([]byte, error) {
	httpClient, err := client.GetHTTPClientSystemProxy(false)
	if err != nil {
		return nil, err
	}
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
		return nil, fmt.Errorf("esplora returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
