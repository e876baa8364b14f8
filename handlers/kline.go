package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"crypto-signal-engine/database"
	models "crypto-signal-engine/database/models_pkg"
)

// KlineMessageType is the stream event type for candlesticks
const KlineMessageType = "kline"

const submitTimeout = 30 * time.Second

// SubmitFunc stores and evaluates one closed candle
type SubmitFunc func(ctx context.Context, c *models.Candle) error

// klineEvent is the exchange candlestick payload. Prices arrive as decimal strings.
type klineEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime            int64  `json:"t"`
		CloseTime           int64  `json:"T"`
		Interval            string `json:"i"`
		Open                string `json:"o"`
		Close               string `json:"c"`
		High                string `json:"h"`
		Low                 string `json:"l"`
		Volume              string `json:"v"`
		Trades              int64  `json:"n"`
		Closed              bool   `json:"x"`
		QuoteVolume         string `json:"q"`
		TakerBuyVolume      string `json:"V"`
		TakerBuyQuoteVolume string `json:"Q"`
	} `json:"k"`
}

// KlineHandler turns closed klines into candle submissions
type KlineHandler struct {
	submit SubmitFunc
}

// NewKlineHandler creates a kline handler
func NewKlineHandler(submit SubmitFunc) *KlineHandler {
	return &KlineHandler{submit: submit}
}

// GetMessageType implements MessageHandler
func (h *KlineHandler) GetMessageType() string {
	return KlineMessageType
}

// Handle submits the kline once it is closed. Open klines and duplicates are ignored.
func (h *KlineHandler) Handle(data []byte) error {
	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode kline: %w", err)
	}
	if !ev.Kline.Closed {
		return nil
	}

	candle, err := ev.toCandle()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	if err := h.submit(ctx, candle); err != nil {
		if errors.Is(err, database.ErrDuplicateCandle) {
			return nil
		}
		return fmt.Errorf("submit %s %s: %w", candle.Symbol, candle.Timeframe, err)
	}
	log.Printf("🕯️ Kline stored: %s %s close=%.8g", candle.Symbol, candle.Timeframe, candle.Close)
	return nil
}

// toCandle converts the payload. The exchange reports the last millisecond of the
// bucket as close time; candles store the exclusive bound.
func (ev *klineEvent) toCandle() (*models.Candle, error) {
	k := ev.Kline
	symbol := ev.Symbol
	if symbol == "" {
		return nil, fmt.Errorf("kline without symbol")
	}

	var parseErr error
	num := func(field, s string) float64 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("kline field %s: %w", field, err)
		}
		return v
	}
	optional := func(field, s string) *float64 {
		if s == "" {
			return nil
		}
		v := num(field, s)
		return &v
	}

	c := &models.Candle{
		Symbol:              symbol,
		Timeframe:           k.Interval,
		OpenTime:            k.OpenTime,
		CloseTime:           k.CloseTime + 1,
		Open:                num("o", k.Open),
		High:                num("h", k.High),
		Low:                 num("l", k.Low),
		Close:               num("c", k.Close),
		Volume:              num("v", k.Volume),
		QuoteVolume:         optional("q", k.QuoteVolume),
		TakerBuyVolume:      optional("V", k.TakerBuyVolume),
		TakerBuyQuoteVolume: optional("Q", k.TakerBuyQuoteVolume),
	}
	if k.Trades > 0 {
		trades := k.Trades
		c.TradesCount = &trades
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return c, nil
}
