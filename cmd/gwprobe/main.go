package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rnovak/ibwire/pkg/gateway"
	"github.com/rnovak/ibwire/pkg/session"
)

func main() {
	symbol := flag.String("symbol", "AAPL", "symbol to probe")
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

	logger.Info("gwprobe started", zap.String("url", GatewayUrl))
	defer logger.Info("gwprobe finished")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var s *session.Session
	client := gateway.NewClient(gateway.SenderFunc(func(req gateway.Request) error {
		return s.Send(req)
	}), logger)

	s, err = session.Dial(GatewayUrl, client, logger)
	if err != nil {
		logger.Fatal("error dialing gateway", zap.Error(err))
	}
	defer s.Close()

	probe(ctx, logger, client, gateway.Contract{
		Symbol:       *symbol,
		SecurityType: "STK",
		Exchange:     *exchange,
		Currency:     *currency,
	})
}

func probe(ctx context.Context, logger *zap.Logger, client *gateway.Client, contract gateway.Contract) {
	timeCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	serverTime, err := client.CurrentTime(timeCtx)
	if err != nil {
		logger.Error("error fetching server time", zap.Error(err))
		return
	}
	logger.Info("server time", zap.Time("time", serverTime))

	snapCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	quotes, err := client.Snapshot(snapCtx, contract)
	if err != nil {
		logger.Error("error fetching snapshot", zap.String("symbol", contract.Symbol), zap.Error(err))
		return
	}
	for field, price := range quotes {
		logger.Info("quote", zap.String("symbol", contract.Symbol), zap.String("field", field), zap.String("price", price.String()))
	}

	ordersCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	orders, err := client.OpenOrders(ordersCtx)
	if err != nil {
		logger.Error("error fetching open orders", zap.Error(err))
		return
	}
	logger.Info("open orders", zap.Int("count", len(orders)))
	for _, ev := range orders {
		status, _ := ev.Str(gateway.FieldStatus)
		logger.Info("open order", zap.Int64("order_id", ev.OrderID), zap.String("status", status))
	}
}
