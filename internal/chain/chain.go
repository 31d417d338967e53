package chain

import (
	"context"
	"fmt"

	"github.com/tokengate/tokengate/internal/conf"
)

// Transfer is one inbound transfer observed at a watched address.
type Transfer struct {
	TxHash        string
	Amount        float64 // whole coin units (USDT, ETH, BTC)
	Confirmations int64
}

// Indexer reads inbound transfers for one address from a public block
// explorer API.
type Indexer interface {
	IncomingTransfers(ctx context.Context, address string) ([]Transfer, error)
}

// NewIndexer builds the indexer named by the currency config.
func NewIndexer(currency conf.Currency) (Indexer, error) {
	switch currency.Indexer {
	case "tron":
		return NewTronIndexer(currency.IndexerURL, currency.Symbol), nil
	case "esplora":
		return NewEsploraIndexer(currency.IndexerURL), nil
	case "etherscan":
		return NewEtherscanIndexer(currency.IndexerURL), nil
	default:
		return nil, fmt.Errorf("unknown indexer type: %s", currency.Indexer)
	}
}
