package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"peatio/pkg/core"
	"peatio/pkg/exchange"
)

var tickerCommand = &cli.Command{
	Name:      "ticker",
	Usage:     "show the latest market statistics",
	ArgsUsage: "<pair>",
	Action:    getTicker,
}

var depthCommand = &cli.Command{
	Name:      "depth",
	Usage:     "show the order book",
	ArgsUsage: "<pair>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Usage: "levels per side"},
	},
	Action: getDepth,
}

var candlesCommand = &cli.Command{
	Name:      "candles",
	Usage:     "show OHLCV candles",
	ArgsUsage: "<pair>",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "period", Value: time.Minute, Usage: "candle period, whole minutes"},
		&cli.IntFlag{Name: "limit", Usage: "number of candles"},
		&cli.TimestampFlag{Name: "since", Layout: time.RFC3339, Usage: "first candle start time"},
	},
	Action: getCandles,
}

var balancesCommand = &cli.Command{
	Name:   "balances",
	Usage:  "show account balances",
	Action: getBalances,
}

var ordersCommand = &cli.Command{
	Name:      "orders",
	Usage:     "list open orders of a market",
	ArgsUsage: "<pair>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Usage: "maximum number of orders"},
	},
	Action: getOpenOrders,
}

var orderCommand = &cli.Command{
	Name:      "order",
	Usage:     "show one order",
	ArgsUsage: "<id>",
	Action:    getOrder,
}

var buyCommand = &cli.Command{
	Name:      "buy",
	Usage:     "place a limit buy order, price in the canonical currency",
	ArgsUsage: "<pair> <amount> <price>",
	Action: func(c *cli.Context) error {
		return placeOrder(c, core.SideBuy)
	},
}

var sellCommand = &cli.Command{
	Name:      "sell",
	Usage:     "place a limit sell order, price in the canonical currency",
	ArgsUsage: "<pair> <amount> <price>",
	Action: func(c *cli.Context) error {
		return placeOrder(c, core.SideSell)
	},
}

var cancelCommand = &cli.Command{
	Name:      "cancel",
	Usage:     "cancel an order",
	ArgsUsage: "<id>",
	Action:    cancelOrder,
}

var feesCommand = &cli.Command{
	Name:   "fees",
	Usage:  "show the exchange's fee schedule",
	Action: getFees,
}

func getTicker(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowSubcommandHelp(c)
	}
	pair, err := argPair(c, 0)
	if err != nil {
		return err
	}
	client, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	ticker, err := client.GetTicker(c.Context, pair)
	if err != nil {
		return err
	}
	return render(ticker, func() { printTicker(ticker) })
}

func getDepth(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowSubcommandHelp(c)
	}
	pair, err := argPair(c, 0)
	if err != nil {
		return err
	}
	client, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	var opts []exchange.Option
	if c.IsSet("limit") {
		opts = append(opts, exchange.WithLimit(c.Int("limit")))
	}
	book, err := client.GetOrderBook(c.Context, pair, opts...)
	if err != nil {
		return err
	}
	return render(book, func() { printOrderBook(book) })
}

func getCandles(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowSubcommandHelp(c)
	}
	pair, err := argPair(c, 0)
	if err != nil {
		return err
	}
	client, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []exchange.Option{exchange.WithPeriod(c.Duration("period"))}
	if c.IsSet("limit") {
		opts = append(opts, exchange.WithLimit(c.Int("limit")))
	}
	if since := c.Timestamp("since"); since != nil {
		opts = append(opts, exchange.WithSince(*since))
	}
	candles, err := client.GetCandles(c.Context, pair, opts...)
	if err != nil {
		return err
	}
	return render(candles, func() { printCandles(candles) })
}

func getBalances(c *cli.Context) error {
	creds, err := credentials()
	if err != nil {
		return err
	}
	client, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	asset, err := client.GetBalances(c.Context, creds)
	if err != nil {
		return err
	}
	return render(asset, func() { printAsset(asset) })
}

func getOpenOrders(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowSubcommandHelp(c)
	}
	pair, err := argPair(c, 0)
	if err != nil {
		return err
	}
	creds, err := credentials()
	if err != nil {
		return err
	}
	client, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	var opts []exchange.Option
	if c.IsSet("limit") {
		opts = append(opts, exchange.WithLimit(c.Int("limit")))
	}
	orders, err := client.GetOpenOrders(c.Context, creds, pair, opts...)
	if err != nil {
		return err
	}
	return render(orders, func() { printOrders(orders...) })
}

func getOrder(c *cli.Context) error {
	id, err := argID(c)
	if err != nil {
		return err
	}
	creds, err := credentials()
	if err != nil {
		return err
	}
	client, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	order, err := client.GetOrder(c.Context, creds, &exchange.OrderQuery{ID: id})
	if err != nil {
		return err
	}
	return render(order, func() { printOrders(*order) })
}

func placeOrder(c *cli.Context, side core.OrderSide) error {
	if c.NArg() < 3 {
		return cli.ShowSubcommandHelp(c)
	}
	pair, err := argPair(c, 0)
	if err != nil {
		return err
	}
	amount, err := argDecimal(c, 1, "amount")
	if err != nil {
		return err
	}
	price, err := argDecimal(c, 2, "price")
	if err != nil {
		return err
	}
	creds, err := credentials()
	if err != nil {
		return err
	}
	client, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	order, err := client.PlaceOrder(c.Context, creds, &exchange.OrderRequest{
		Pair:   pair,
		Side:   side,
		Type:   core.TypeLimit,
		Amount: amount,
		Price:  price,
	})
	if core.IsOutcomeUnknown(err) {
		return fmt.Errorf("%w; run `peatioctl orders %s` before placing it again", err, pair)
	}
	if err != nil {
		return err
	}
	return render(order, func() { printOrders(*order) })
}

func cancelOrder(c *cli.Context) error {
	id, err := argID(c)
	if err != nil {
		return err
	}
	creds, err := credentials()
	if err != nil {
		return err
	}
	client, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := client.Cancel(c.Context, creds, &exchange.CancelRequest{ID: id}); err != nil {
		return err
	}
	fmt.Printf("cancel of order %d accepted\n", id)
	return nil
}

func getFees(c *cli.Context) error {
	client, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	fees := client.Fees()
	return render(fees, func() { printFees(&fees) })
}

func argID(c *cli.Context) (int64, error) {
	s := c.Args().First()
	if s == "" {
		return 0, errors.New("missing order id")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("order id: %w", err)
	}
	return id, nil
}
