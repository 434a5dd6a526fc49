package polymarket

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/polymaker/internal/domain"
)

// --------------------------------------------------------------------------
// CLOB REST DTOs
// --------------------------------------------------------------------------

// apiOrder is an order as the CLOB API reports it. Numeric fields arrive
// as decimal strings.
type apiOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	CreatedAt    string `json:"created_at"`
}

// toDomain maps an apiOrder onto a domain.Order. The market resolves the
// asset ID back to an outcome; orders on unknown assets return ErrNoMarket.
func (a *apiOrder) toDomain(market domain.Market) (domain.Order, error) {
	token, err := market.Token(a.AssetID)
	if err != nil {
		return domain.Order{}, err
	}

	o := domain.Order{
		ID:    a.ID,
		Token: token,
		Side:  domain.Side(a.Side),
	}
	o.Price, _ = strconv.ParseFloat(a.Price, 64)
	o.Size, _ = strconv.ParseFloat(a.OriginalSize, 64)
	matched, _ := strconv.ParseFloat(a.SizeMatched, 64)

	switch a.Status {
	case "live", "open":
		if matched > 0 {
			o.Status = domain.OrderStatusPartiallyFilled
		} else {
			o.Status = domain.OrderStatusOpen
		}
	case "matched", "filled":
		o.Status = domain.OrderStatusFilled
	case "cancelled", "canceled":
		o.Status = domain.OrderStatusCancelled
	default:
		o.Status = domain.OrderStatusOpen
	}
	return o, nil
}

// apiOrderResult is the response from POST /order.
type apiOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// apiBalance is the response from GET /balance-allowance.
type apiBalance struct {
	Balance string `json:"balance"`
}

// apiMidpoint is the response from GET /midpoint.
type apiMidpoint struct {
	Mid string `json:"mid"`
}

// apiMarket is the subset of GET /markets/{conditionID} the keeper needs
// to resolve outcome token IDs.
type apiMarket struct {
	ConditionID string `json:"condition_id"`
	Tokens      []struct {
		TokenID string `json:"token_id"`
		Outcome string `json:"outcome"`
	} `json:"tokens"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsCommand is the subscribe/unsubscribe payload sent to the market feed.
type wsCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// bookMessage is a full orderbook snapshot frame.
type bookMessage struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []wsPriceLevel `json:"bids"`
	Asks      []wsPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

type wsPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// priceChangeMessage is an incremental level update frame. Size "0" means
// the level was removed.
type priceChangeMessage struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

func (b *bookMessage) toDomain() domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		AssetID:   b.AssetID,
		Timestamp: parseWSTimestamp(b.Timestamp),
	}
	for _, lvl := range b.Bids {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: p, Size: s})
	}
	for _, lvl := range b.Asks {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: p, Size: s})
	}
	return snap
}

func (p *priceChangeMessage) toDomain() domain.PriceChange {
	pc := domain.PriceChange{
		AssetID:   p.AssetID,
		Side:      domain.Side(p.Side),
		Timestamp: parseWSTimestamp(p.Timestamp),
	}
	pc.Price, _ = strconv.ParseFloat(p.Price, 64)
	pc.Size, _ = strconv.ParseFloat(p.Size, 64)
	return pc
}

// parseWSTimestamp accepts the feed's millisecond-epoch strings as well as
// RFC3339, falling back to now.
func parseWSTimestamp(s string) time.Time {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms > 1e12 {
			return time.UnixMilli(ms)
		}
		return time.Unix(ms, 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
