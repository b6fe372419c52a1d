package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"exchlink/internal/config"
	"exchlink/internal/feed"
	"exchlink/internal/gateway"
	"exchlink/internal/model"
	"exchlink/internal/pricebook"

	"github.com/shopspring/decimal"
)

const usage = `usage: exchlink [-config dir] <command> [flags]

commands:
  feed                          stream ticker updates until interrupted
  place  -exchange -symbol -side -qty -price
  cancel -exchange -order`

func main() {
	configDir := flag.String("config", ".", "directory containing config.yaml")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "feed":
		err = runFeed(ctx, logger, cfg)
	case "place":
		err = runPlace(ctx, logger, cfg, args)
	case "cancel":
		err = runCancel(ctx, logger, cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func runFeed(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	book := pricebook.NewBook()
	sink := feed.SinkFunc(func(u model.TickerUpdate) {
		book.Ticker(u)
		fmt.Println(u.Symbol, u.LastPrice)
	})

	client := feed.NewClient(logger, cfg.Feed.HandshakeTimeout)
	handler := feed.NewTickerHandler(logger, cfg.Feed.Channel, cfg.Feed.SubscribeID, sink)
	err := client.Connect(ctx, cfg.Feed.URL, handler)
	for _, u := range book.Snapshot() {
		logger.Debug("last price", "symbol", u.Symbol, "price", u.LastPrice)
	}
	logger.Info("feed stopped", "symbols", book.Len())
	return err
}

func runPlace(ctx context.Context, logger *slog.Logger, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("place", flag.ExitOnError)
	exchange := fs.String("exchange", "exchange_a", "exchange routing key")
	symbol := fs.String("symbol", "", "trading pair, e.g. BTC/USDT")
	side := fs.String("side", "buy", "buy or sell")
	qty := fs.String("qty", "", "order quantity")
	price := fs.String("price", "", "limit price")
	_ = fs.Parse(args)

	id, err := model.ParseExchangeID(*exchange)
	if err != nil {
		return err
	}
	s, err := model.ParseSide(*side)
	if err != nil {
		return err
	}
	q, err := decimal.NewFromString(*qty)
	if err != nil {
		return fmt.Errorf("parse qty: %w", err)
	}
	p, err := decimal.NewFromString(*price)
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}

	gw, err := gateway.NewFromConfig(logger, cfg)
	if err != nil {
		return err
	}
	resp, err := gw.PlaceOrder(ctx, id, model.OrderRequest{Symbol: *symbol, Side: s, Quantity: q, Price: p})
	if err != nil {
		if resp != nil {
			_ = printResponse("Order rejected by "+id.Key(), resp)
		}
		return err
	}
	return printResponse("Placed order on "+id.Key(), resp)
}

func runCancel(ctx context.Context, logger *slog.Logger, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	exchange := fs.String("exchange", "exchange_a", "exchange routing key")
	orderID := fs.String("order", "", "exchange order id")
	_ = fs.Parse(args)

	id, err := model.ParseExchangeID(*exchange)
	if err != nil {
		return err
	}
	gw, err := gateway.NewFromConfig(logger, cfg)
	if err != nil {
		return err
	}
	resp, err := gw.CancelOrder(ctx, id, *orderID)
	if err != nil {
		if resp != nil {
			_ = printResponse("Cancel rejected by "+id.Key(), resp)
		}
		return err
	}
	return printResponse("Cancelled order on "+id.Key(), resp)
}

func printResponse(title string, resp model.Response) error {
	out, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", title, out)
	return nil
}
