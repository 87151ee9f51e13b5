package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/notify-relay/internal/client"
	"github.com/notify-relay/internal/protocol"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := client.ParseOptions(os.Args[1:])
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := client.ValidateRequired(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	state := client.NewUnreadState(opts.BaseURL, opts.Token, nil)
	alerter := &client.TerminalAlerter{Out: os.Stdout, Bell: !opts.NoBell}
	go state.Run(ctx, func(u client.Unread, err error) {
		if err != nil {
			logger.Warn("refresh unread state", "err", err)
			return
		}
		logger.Info("unread notifications", "count", u.Count)
	})
	rec := client.NewReconciler(state, alerter, client.ReconcilerOptions{
		DedupeWindow: opts.DedupeWindow,
		Logger:       logger,
	})
	go rec.Run(ctx)

	if opts.PushReceipts {
		go func() {
			if err := client.ReadPushReceipts(ctx, os.Stdin, rec.HandlePushReceipt, logger); err != nil {
				logger.Warn("push receipts stopped", "err", err)
			}
		}()
	}

	live, err := client.NewLiveChannel(client.LiveOptions{
		BaseURL: opts.BaseURL,
		Token:   opts.Token,
		UserID:  opts.UserID,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := live.Run(ctx, func(ev protocol.Event) { rec.HandleLive(ev) }); err != nil {
		logger.Error("live channel stopped", "err", err)
		os.Exit(1)
	}
}
