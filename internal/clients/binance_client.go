// Package clients wraps exchange SDK clients consumed by the savings bot.
package clients

import (
	"context"
	"regexp"
	"time"

	"github.com/adshao/go-binance/v2"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/dynsavings/internal/domain"
)

const (
	symbolInfoTTL     = 7 * 24 * time.Hour
	marketDataTTL     = 24 * time.Hour
	savingsProductTTL = 5 * time.Second

	productPageSize      = 100
	productStatusActive  = "PURCHASING"
	redeemTypeFast       = "FAST"
	cacheCleanupInterval = time.Hour
)

// BinanceClient exposes the exchange capability surface consumed by the
// rebalancing engine: symbol metadata, order history, spot balances and the
// Flexible Savings product endpoints. Read endpoints are cached with TTLs
// matched to how often the underlying data actually changes.
type BinanceClient struct {
	api *binance.Client

	symbolInfo  *gocache.Cache
	marketData  *gocache.Cache
	productInfo *gocache.Cache
}

// NewBinanceClient creates a client wrapper around the Binance REST API.
func NewBinanceClient(apiKey, secretKey string) *BinanceClient {
	return &BinanceClient{
		api:         binance.NewClient(apiKey, secretKey),
		symbolInfo:  gocache.New(symbolInfoTTL, cacheCleanupInterval),
		marketData:  gocache.New(marketDataTTL, cacheCleanupInterval),
		productInfo: gocache.New(savingsProductTTL, cacheCleanupInterval),
	}
}

// ActiveSymbols returns the symbols of open orders whose client order ID
// matches the DCA strategy's naming convention.
func (c *BinanceClient) ActiveSymbols(ctx context.Context, clientOrderIDPattern *regexp.Regexp) ([]string, error) {
	openOrders, err := c.api.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list open orders")
	}

	seen := make(map[string]struct{})
	var symbols []string
	for _, o := range openOrders {
		if !clientOrderIDPattern.MatchString(o.ClientOrderID) {
			continue
		}
		if _, ok := seen[o.Symbol]; ok {
			continue
		}
		seen[o.Symbol] = struct{}{}
		symbols = append(symbols, o.Symbol)
	}

	return symbols, nil
}

// BaseAsset resolves the base asset of a symbol.
func (c *BinanceClient) BaseAsset(ctx context.Context, symbol string) (string, error) {
	info, err := c.getSymbolInfo(ctx, symbol)
	if err != nil {
		return "", err
	}

	return info.BaseAsset, nil
}

// QuoteAsset resolves the quote asset of a symbol.
func (c *BinanceClient) QuoteAsset(ctx context.Context, symbol string) (string, error) {
	info, err := c.getSymbolInfo(ctx, symbol)
	if err != nil {
		return "", err
	}

	return info.QuoteAsset, nil
}

// QuotePrecision resolves the quote-currency decimal precision of a symbol.
func (c *BinanceClient) QuotePrecision(ctx context.Context, symbol string) (int32, error) {
	info, err := c.getSymbolInfo(ctx, symbol)
	if err != nil {
		return 0, err
	}

	return int32(info.QuotePrecision), nil
}

// StepSize resolves the minimum price increment of a symbol. Cached apart
// from the long-lived symbol info cache because step size changes
// occasionally.
func (c *BinanceClient) StepSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := "step_" + symbol
	if v, ok := c.marketData.Get(key); ok {
		return v.(decimal.Decimal), nil
	}

	info, err := c.fetchSymbolInfo(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	lotSize := info.LotSizeFilter()
	if lotSize == nil {
		return decimal.Zero, errors.Errorf("no LOT_SIZE filter for symbol %s", symbol)
	}

	step, err := decimal.NewFromString(lotSize.StepSize)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to parse step size for %s", symbol)
	}

	c.marketData.Set(key, step, gocache.DefaultExpiration)

	return step, nil
}

// SymbolPrice returns the current average price of a symbol.
func (c *BinanceClient) SymbolPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := "avgprice_" + symbol
	if v, ok := c.marketData.Get(key); ok {
		return v.(decimal.Decimal), nil
	}

	avg, err := c.api.NewAveragePriceService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to get average price for %s", symbol)
	}

	price, err := decimal.NewFromString(avg.Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to parse average price for %s", symbol)
	}

	c.marketData.Set(key, price, gocache.DefaultExpiration)

	return price, nil
}

// OrdersBySymbol fetches the complete order history of a symbol.
func (c *BinanceClient) OrdersBySymbol(ctx context.Context, symbol string) ([]domain.Order, error) {
	raw, err := c.api.NewListOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list orders for %s", symbol)
	}

	info, err := c.getSymbolInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(raw))
	for _, o := range raw {
		order, err := mapOrder(o, info.BaseAsset, info.QuoteAsset)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to map order %s", o.ClientOrderID)
		}
		orders = append(orders, order)
	}

	return orders, nil
}

// AvailableBalance returns the free spot balance of an asset.
func (c *BinanceClient) AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	free, _, err := c.assetBalance(ctx, asset)
	return free, err
}

// TotalBalance returns free plus locked spot balance of an asset.
func (c *BinanceClient) TotalBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	free, locked, err := c.assetBalance(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}

	return free.Add(locked), nil
}

func (c *BinanceClient) assetBalance(ctx context.Context, asset string) (free, locked decimal.Decimal, err error) {
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "failed to get account balances")
	}

	for _, b := range account.Balances {
		if b.Asset != asset {
			continue
		}
		free, err = decimal.NewFromString(b.Free)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.Wrapf(err, "failed to parse free %s balance", asset)
		}
		locked, err = decimal.NewFromString(b.Locked)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.Wrapf(err, "failed to parse locked %s balance", asset)
		}
		return free, locked, nil
	}

	return decimal.Zero, decimal.Zero, nil
}

// SavingsAvailable returns the redeemable Flexible Savings balance of an asset.
func (c *BinanceClient) SavingsAvailable(ctx context.Context, asset string) (decimal.Decimal, error) {
	pos, err := c.savingsPosition(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	if pos == nil {
		return decimal.Zero, nil
	}

	free, err := decimal.NewFromString(pos.FreeAmount)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to parse savings free amount for %s", asset)
	}

	return free, nil
}

// SavingsAccruing returns the part of the savings balance already earning
// interest: free amount minus what was purchased today.
func (c *BinanceClient) SavingsAccruing(ctx context.Context, asset string) (decimal.Decimal, error) {
	pos, err := c.savingsPosition(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	if pos == nil {
		return decimal.Zero, nil
	}

	free, err := decimal.NewFromString(pos.FreeAmount)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to parse savings free amount for %s", asset)
	}
	today, err := decimal.NewFromString(pos.TotalPurchasedAmount)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to parse today purchased amount for %s", asset)
	}

	accruing := free.Sub(today)
	if accruing.IsNegative() {
		return decimal.Zero, nil
	}

	return accruing, nil
}

func (c *BinanceClient) savingsPosition(ctx context.Context, asset string) (*binance.SavingFlexibleProductPosition, error) {
	positions, err := c.api.NewSavingFlexibleProductPositionsService().Asset(asset).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get savings position for %s", asset)
	}
	if len(positions) == 0 {
		return nil, nil
	}

	return positions[0], nil
}

// CanPurchase reports whether the asset's savings product currently accepts
// subscriptions.
func (c *BinanceClient) CanPurchase(ctx context.Context, asset string) (bool, error) {
	product, err := c.savingsProduct(ctx, asset)
	if err != nil {
		return false, err
	}

	return product != nil && product.CanPurchase && product.Status == productStatusActive, nil
}

// CanRedeem reports whether the asset's savings product currently accepts
// redemptions.
func (c *BinanceClient) CanRedeem(ctx context.Context, asset string) (bool, error) {
	product, err := c.savingsProduct(ctx, asset)
	if err != nil {
		return false, err
	}

	return product != nil && product.CanRedeem && product.Status == productStatusActive, nil
}

// MinPurchaseAmount returns the minimum subscription amount of the asset's
// savings product. Zero when no product exists.
func (c *BinanceClient) MinPurchaseAmount(ctx context.Context, asset string) (decimal.Decimal, error) {
	key := "minpurchase_" + asset
	if v, ok := c.marketData.Get(key); ok {
		return v.(decimal.Decimal), nil
	}

	product, err := c.savingsProduct(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	if product == nil {
		return decimal.Zero, nil
	}

	min, err := decimal.NewFromString(product.MinPurchaseAmount)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to parse min purchase amount for %s", asset)
	}

	c.marketData.Set(key, min, gocache.DefaultExpiration)

	return min, nil
}

// Subscribe moves amount of asset from the spot wallet into Flexible Savings.
func (c *BinanceClient) Subscribe(ctx context.Context, asset string, amount decimal.Decimal) error {
	productID, err := c.productID(ctx, asset)
	if err != nil {
		return err
	}

	_, err = c.api.NewPurchaseSavingsFlexibleProductService().
		ProductId(productID).
		Amount(amount.InexactFloat64()).
		Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to subscribe %s %s to savings", amount.String(), asset)
	}

	return nil
}

// Redeem moves amount of asset from Flexible Savings back to the spot wallet
// using fast redemption.
func (c *BinanceClient) Redeem(ctx context.Context, asset string, amount decimal.Decimal) error {
	productID, err := c.productID(ctx, asset)
	if err != nil {
		return err
	}

	err = c.api.NewRedeemSavingsFlexibleProductService().
		ProductId(productID).
		Amount(amount.InexactFloat64()).
		Type(redeemTypeFast).
		Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to redeem %s %s from savings", amount.String(), asset)
	}

	return nil
}

func (c *BinanceClient) productID(ctx context.Context, asset string) (string, error) {
	product, err := c.savingsProduct(ctx, asset)
	if err != nil {
		return "", err
	}
	if product == nil {
		return "", errors.Errorf("no flexible savings product for asset %s", asset)
	}

	return product.ProductId, nil
}

// savingsProduct pages through the lending product list until the asset's
// product is found. Cached with a short TTL: eligibility flags flip around
// the exchange's daily maintenance window.
func (c *BinanceClient) savingsProduct(ctx context.Context, asset string) (*binance.SavingsFlexibleProduct, error) {
	if v, ok := c.productInfo.Get(asset); ok {
		return v.(*binance.SavingsFlexibleProduct), nil
	}

	for page := int64(1); ; page++ {
		products, err := c.api.NewListSavingsFlexibleProductsService().
			Current(page).
			Size(productPageSize).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list savings products (page %d)", page)
		}

		for _, p := range products {
			if p.Asset == asset {
				c.productInfo.Set(asset, p, gocache.DefaultExpiration)
				return p, nil
			}
		}

		if len(products) < productPageSize {
			return nil, nil
		}
	}
}

// StartUserStream opens a user-data stream and returns its listen key.
func (c *BinanceClient) StartUserStream(ctx context.Context) (string, error) {
	listenKey, err := c.api.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to start user data stream")
	}

	return listenKey, nil
}

// KeepaliveUserStream prolongs the user-data stream's listen key.
func (c *BinanceClient) KeepaliveUserStream(ctx context.Context, listenKey string) error {
	if err := c.api.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
		return errors.Wrap(err, "failed to keepalive user data stream")
	}

	return nil
}

func (c *BinanceClient) getSymbolInfo(ctx context.Context, symbol string) (*binance.Symbol, error) {
	if v, ok := c.symbolInfo.Get(symbol); ok {
		return v.(*binance.Symbol), nil
	}

	info, err := c.fetchSymbolInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}

	c.symbolInfo.Set(symbol, info, gocache.DefaultExpiration)

	return info, nil
}

func (c *BinanceClient) fetchSymbolInfo(ctx context.Context, symbol string) (*binance.Symbol, error) {
	exchangeInfo, err := c.api.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get exchange info for %s", symbol)
	}

	for i := range exchangeInfo.Symbols {
		if exchangeInfo.Symbols[i].Symbol == symbol {
			return &exchangeInfo.Symbols[i], nil
		}
	}

	return nil, errors.Errorf("symbol %s not found in exchange info", symbol)
}

func mapOrder(o *binance.Order, baseAsset, quoteAsset string) (domain.Order, error) {
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "failed to parse order price")
	}
	qty, err := decimal.NewFromString(o.OrigQuantity)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "failed to parse order quantity")
	}

	return domain.Order{
		Symbol:     o.Symbol,
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		Price:      price,
		Quantity:   qty,
		ClientID:   o.ClientOrderID,
		Status:     domain.OrderStatus(o.Status),
		Side:       domain.OrderSide(o.Side),
		Time:       time.UnixMilli(o.Time),
	}, nil
}
