package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/rnovak/ibwire/pkg/data/duckdb"
	"github.com/rnovak/ibwire/pkg/gateway"
	"github.com/rnovak/ibwire/pkg/session"
)

func main() {
	symbols := flag.String("symbols", "", "comma separated symbols to sync")
	exchange := flag.String("exchange", "SMART", "exchange")
	currency := flag.String("currency", "USD", "currency")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	if *symbols == "" {
		logger.Fatal("symbols are required")
	}

	logger.Info("barsync started", zap.String("url", GatewayUrl), zap.String("db", DatabasePath))
	defer logger.Info("barsync finished")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := duckdb.NewStore(DatabasePath)
	if err := store.Connect(); err != nil {
		logger.Fatal("error connecting to database", zap.Error(err))
	}
	defer store.Close()

	var s *session.Session
	client := gateway.NewClient(gateway.SenderFunc(func(req gateway.Request) error {
		return s.Send(req)
	}), logger)

	s, err = session.Dial(GatewayUrl, client, logger)
	if err != nil {
		logger.Fatal("error dialing gateway", zap.Error(err))
	}
	defer s.Close()

	for _, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		if err := sync(ctx, logger, client, store, gateway.Contract{
			Symbol:       symbol,
			SecurityType: "STK",
			Exchange:     *exchange,
			Currency:     *currency,
		}); err != nil {
			logger.Error("error syncing bars", zap.String("symbol", symbol), zap.Error(err))
			return
		}
	}
}

func sync(ctx context.Context, logger *zap.Logger, client *gateway.Client, store *duckdb.Store, contract gateway.Contract) error {
	reqCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	bars, err := client.HistoricalData(reqCtx, contract, map[string]string{
		"duration": BarDuration,
		"bar-size": BarSize,
		"what":     "TRADES",
	})
	if err != nil {
		return err
	}
	if err := store.SaveBars(ctx, contract.Symbol, bars); err != nil {
		return err
	}

	logger.Info("bars synced", zap.String("symbol", contract.Symbol), zap.Int("count", len(bars)))
	return nil
}
