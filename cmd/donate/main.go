// Command donate contributes to the fund from a local key.
//
// Usage:
//
//	donate [-config dir] [-key hex] contribute <usd>
//	donate [-config dir] [-key hex] swap <usdc> [relayer|traditional]
//	donate [-config dir] [-key hex] fund <zkp2p|cowswap|manual> <usd>
//	donate [-config dir] [-key hex] status [usd]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/config"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/internal/logger"
	evmsigner "github.com/mmoncada1/Marina-Pickleball-Community-Fund/signers/evm"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/swap"
)

// fundingPoll is how often fund re-checks the top-up state
const fundingPoll = time.Second

var errUsage = errors.New("usage: donate [-config dir] [-key hex] contribute|swap|fund|status ...")

func main() {
	configDir := flag.String("config", "", "directory containing fundd.yaml")
	key := flag.String("key", os.Getenv("FUNDD_DONOR_KEY"), "donor private key (hex)")
	flag.Parse()

	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	c, err := config.Load(config.New(paths...))
	if err != nil {
		fmt.Fprintln(os.Stderr, "donate:", err)
		os.Exit(1)
	}
	log := logger.New("donate", c.Log.Level)
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *key == "" {
		fmt.Fprintln(os.Stderr, "donate: -key or FUNDD_DONOR_KEY is required")
		os.Exit(2)
	}
	signer, err := evmsigner.Dial(ctx, *key, map[fund.ChainID]string{c.ChainID(): c.Chain.RPCURL}, c.ChainID())
	if err != nil {
		fmt.Fprintln(os.Stderr, "donate:", err)
		os.Exit(1)
	}

	s, err := newSession(c, signer, signer, os.Stdout, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "donate:", err)
		os.Exit(1)
	}
	defer s.flow.Close()

	if err := s.run(ctx, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "donate:", fund.UserMessage(err))
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (s *session) run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	if err := s.oracle.Refresh(ctx); err != nil {
		fmt.Fprintf(out, "price unavailable, using %s USD\n", s.oracle.Current())
	}

	switch args[0] {
	case "contribute":
		if len(args) != 2 {
			return errUsage
		}
		return s.contribute(ctx, args[1], out)
	case "swap":
		if len(args) < 2 || len(args) > 3 {
			return errUsage
		}
		var override swap.Method
		if len(args) == 3 {
			override = swap.Method(args[2])
		}
		return s.swap(ctx, args[1], override, out)
	case "fund":
		if len(args) != 3 {
			return errUsage
		}
		return s.fund(ctx, args[1], args[2], out)
	case "status":
		usd := ""
		if len(args) > 1 {
			usd = args[1]
		}
		return s.status(ctx, usd, out)
	default:
		return errUsage
	}
}

func (s *session) contribute(ctx context.Context, usd string, out io.Writer) error {
	record, err := s.flow.Contribute(ctx, usd)
	if err != nil {
		var fe *fund.FundError
		if errors.As(err, &fe) && fe.Code == fund.ErrCodeInsufficientBalance {
			fmt.Fprintf(out, "need %v ETH, have %v ETH; try: donate fund <%v> %s\n",
				fe.Details["required"], fe.Details["balance"], fe.Details["options"], usd)
		}
		return err
	}
	fmt.Fprintf(out, "contributed, tx %s\n", record.Hash)
	return nil
}

func (s *session) swap(ctx context.Context, usdc string, override swap.Method, out io.Writer) error {
	fmt.Fprintf(out, "estimated relayer fee: %s USDC\n", s.swaps.EstimateFee(ctx).StringFixed(2))
	result, err := s.flow.Swap(ctx, usdc, override)
	if err != nil {
		return err
	}
	switch {
	case result.SwapURL != "":
		fmt.Fprintf(out, "finish the swap at %s\n", result.SwapURL)
	case result.TxHash != "":
		fmt.Fprintf(out, "swapped via %s, tx %s\n", result.Method, result.TxHash)
	default:
		fmt.Fprintf(out, "order %s placed via %s\n", result.OrderUID, result.Method)
	}
	return nil
}

func (s *session) fund(ctx context.Context, provider, usd string, out io.Writer) error {
	s.flow.Start(ctx)
	target, err := s.flow.AddFunds(ctx, provider, usd)
	if err != nil {
		return err
	}
	if target != "" {
		fmt.Fprintf(out, "open %s\n", target)
	}
	fmt.Fprintln(out, "waiting for funds, ctrl-c to stop")

	for {
		state := s.flow.FundingState()
		if !state.Waiting {
			if state.BalanceIncreased {
				fmt.Fprintln(out, "funds arrived")
				return nil
			}
			if state.Error != "" {
				return errors.New(state.Error)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			s.flow.CancelFunding()
			return nil
		case <-time.After(fundingPoll):
		}
	}
}

func (s *session) status(ctx context.Context, usd string, out io.Writer) error {
	intent := s.flow.Quote(ctx, usd)
	fmt.Fprintf(out, "rate: %s USD/ETH\n", s.oracle.Current())
	if intent.HasAmount() {
		fmt.Fprintf(out, "%s USD = %s ETH (sufficient: %t)\n", intent.USDAmount, intent.Required, intent.Sufficient)
	}
	fmt.Fprintf(out, "funding options: %v\n", s.flow.FundingOptions())
	return nil
}
