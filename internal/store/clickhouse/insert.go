package clickhouse

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/marketprism/marketprism/internal/decimalx"
	"github.com/marketprism/marketprism/internal/schema"
)

const wireTimeLayout = "2006-01-02 15:04:05.000"

// wireCommon mirrors schema.Common as it actually appears on the wire:
// Common.Timestamp is tagged json:"-" so each record's MarshalJSON adds
// its own "timestamp" string field instead.
type wireCommon struct {
	Timestamp  string            `json:"timestamp"`
	Exchange   schema.Exchange   `json:"exchange"`
	MarketType schema.MarketType `json:"market_type"`
	Symbol     string            `json:"symbol"`
	DataSource string            `json:"data_source"`
}

func (w wireCommon) parseTime() (time.Time, error) {
	return time.Parse(wireTimeLayout, w.Timestamp)
}

type wireTrade struct {
	wireCommon
	TradeID  string          `json:"trade_id"`
	Price    decimalx.Number `json:"price"`
	Quantity decimalx.Number `json:"quantity"`
	Side     schema.Side     `json:"side"`
	IsMaker  bool            `json:"is_maker"`
	FirstID  string          `json:"first_trade_id"`
	LastID   string          `json:"last_trade_id"`
}

type wirePriceLevel [2]string

type wireOrderbook struct {
	wireCommon
	LastUpdateID int64            `json:"last_update_id"`
	BestBidPrice decimalx.Number  `json:"best_bid_price"`
	BestAskPrice decimalx.Number  `json:"best_ask_price"`
	Bids         []wirePriceLevel `json:"bids"`
	Asks         []wirePriceLevel `json:"asks"`
}

type wireFundingRate struct {
	wireCommon
	FundingRate     decimalx.Number `json:"funding_rate"`
	FundingTime     string          `json:"funding_time"`
	NextFundingTime string          `json:"next_funding_time"`
}

type wireOpenInterest struct {
	wireCommon
	OpenInterest      decimalx.Number `json:"open_interest"`
	OpenInterestValue decimalx.Number `json:"open_interest_value"`
}

type wireLiquidation struct {
	wireCommon
	Side     schema.Side     `json:"side"`
	Price    decimalx.Number `json:"price"`
	Quantity decimalx.Number `json:"quantity"`
}

type wireLSRTopPosition struct {
	wireCommon
	LongPositionRatio  decimalx.Number `json:"long_position_ratio"`
	ShortPositionRatio decimalx.Number `json:"short_position_ratio"`
	Period             string          `json:"period"`
}

type wireLSRAllAccount struct {
	wireCommon
	LongAccountRatio  decimalx.Number `json:"long_account_ratio"`
	ShortAccountRatio decimalx.Number `json:"short_account_ratio"`
	Period            string          `json:"period"`
}

type wireVolatilityIndex struct {
	wireCommon
	IndexValue      decimalx.Number `json:"index_value"`
	UnderlyingAsset string          `json:"underlying_asset"`
}

func levelPairs(levels []wirePriceLevel) [][]string {
	out := make([][]string, len(levels))
	for i, l := range levels {
		out[i] = []string{l[0], l[1]}
	}
	return out
}

// appendRows decodes each raw JSON payload into its typed wire struct
// and appends a row to batch in the table's declared column order.
func appendRows(batch driver.Batch, dataType schema.DataType, payloads [][]byte) error {
	switch dataType {
	case schema.DataTypeTrade:
		for _, raw := range payloads {
			var w wireTrade
			if err := json.Unmarshal(raw, &w); err != nil {
				return fmt.Errorf("clickhouse: decoding trade: %w", err)
			}
			ts, err := w.parseTime()
			if err != nil {
				return fmt.Errorf("clickhouse: parsing trade timestamp: %w", err)
			}
			if err := batch.Append(ts, w.Exchange, w.MarketType, w.Symbol, w.DataSource,
				w.TradeID, w.Price.String(), w.Quantity.String(), w.Side, w.IsMaker, w.FirstID, w.LastID); err != nil {
				return err
			}
		}
	case schema.DataTypeOrderbook:
		for _, raw := range payloads {
			var w wireOrderbook
			if err := json.Unmarshal(raw, &w); err != nil {
				return fmt.Errorf("clickhouse: decoding orderbook: %w", err)
			}
			ts, err := w.parseTime()
			if err != nil {
				return fmt.Errorf("clickhouse: parsing orderbook timestamp: %w", err)
			}
			if err := batch.Append(ts, w.Exchange, w.MarketType, w.Symbol, w.DataSource,
				w.LastUpdateID, w.BestBidPrice.String(), w.BestAskPrice.String(),
				levelPairs(w.Bids), levelPairs(w.Asks)); err != nil {
				return err
			}
		}
	case schema.DataTypeFundingRate:
		for _, raw := range payloads {
			var w wireFundingRate
			if err := json.Unmarshal(raw, &w); err != nil {
				return fmt.Errorf("clickhouse: decoding funding rate: %w", err)
			}
			ts, err := w.parseTime()
			if err != nil {
				return fmt.Errorf("clickhouse: parsing funding rate timestamp: %w", err)
			}
			fundingTime, err := time.Parse(wireTimeLayout, w.FundingTime)
			if err != nil {
				return fmt.Errorf("clickhouse: parsing funding_time: %w", err)
			}
			nextFundingTime, err := time.Parse(wireTimeLayout, w.NextFundingTime)
			if err != nil {
				return fmt.Errorf("clickhouse: parsing next_funding_time: %w", err)
			}
			if err := batch.Append(ts, w.Exchange, w.MarketType, w.Symbol, w.DataSource,
				w.FundingRate.String(), fundingTime, nextFundingTime); err != nil {
				return err
			}
		}
	case schema.DataTypeOpenInterest:
		for _, raw := range payloads {
			var w wireOpenInterest
			if err := json.Unmarshal(raw, &w); err != nil {
				return fmt.Errorf("clickhouse: decoding open interest: %w", err)
			}
			ts, err := w.parseTime()
			if err != nil {
				return fmt.Errorf("clickhouse: parsing open interest timestamp: %w", err)
			}
			if err := batch.Append(ts, w.Exchange, w.MarketType, w.Symbol, w.DataSource,
				w.OpenInterest.String(), w.OpenInterestValue.String()); err != nil {
				return err
			}
		}
	case schema.DataTypeLiquidation:
		for _, raw := range payloads {
			var w wireLiquidation
			if err := json.Unmarshal(raw, &w); err != nil {
				return fmt.Errorf("clickhouse: decoding liquidation: %w", err)
			}
			ts, err := w.parseTime()
			if err != nil {
				return fmt.Errorf("clickhouse: parsing liquidation timestamp: %w", err)
			}
			if err := batch.Append(ts, w.Exchange, w.MarketType, w.Symbol, w.DataSource,
				w.Side, w.Price.String(), w.Quantity.String()); err != nil {
				return err
			}
		}
	case schema.DataTypeLSRTopPosition:
		for _, raw := range payloads {
			var w wireLSRTopPosition
			if err := json.Unmarshal(raw, &w); err != nil {
				return fmt.Errorf("clickhouse: decoding lsr top position: %w", err)
			}
			ts, err := w.parseTime()
			if err != nil {
				return fmt.Errorf("clickhouse: parsing lsr top position timestamp: %w", err)
			}
			if err := batch.Append(ts, w.Exchange, w.MarketType, w.Symbol, w.DataSource,
				w.LongPositionRatio.String(), w.ShortPositionRatio.String(), w.Period); err != nil {
				return err
			}
		}
	case schema.DataTypeLSRAllAccount:
		for _, raw := range payloads {
			var w wireLSRAllAccount
			if err := json.Unmarshal(raw, &w); err != nil {
				return fmt.Errorf("clickhouse: decoding lsr all account: %w", err)
			}
			ts, err := w.parseTime()
			if err != nil {
				return fmt.Errorf("clickhouse: parsing lsr all account timestamp: %w", err)
			}
			if err := batch.Append(ts, w.Exchange, w.MarketType, w.Symbol, w.DataSource,
				w.LongAccountRatio.String(), w.ShortAccountRatio.String(), w.Period); err != nil {
				return err
			}
		}
	case schema.DataTypeVolatilityIndex:
		for _, raw := range payloads {
			var w wireVolatilityIndex
			if err := json.Unmarshal(raw, &w); err != nil {
				return fmt.Errorf("clickhouse: decoding volatility index: %w", err)
			}
			ts, err := w.parseTime()
			if err != nil {
				return fmt.Errorf("clickhouse: parsing volatility index timestamp: %w", err)
			}
			if err := batch.Append(ts, w.Exchange, w.MarketType, w.Symbol, w.DataSource,
				w.IndexValue.String(), w.UnderlyingAsset); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("clickhouse: unknown data type %q", dataType)
	}
	return nil
}
