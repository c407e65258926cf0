package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transfer-backend/internal/services"
	"transfer-backend/internal/validator"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	sendTo     string
	sendAmount string
	sendToken  string

	trackHash   string
	trackTo     string
	trackAmount string
	trackToken  string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and send a transfer, then wait for its receipt",
	Long: `Sends amount of token to the recipient with the configured key on the
selected chain. The command blocks until the receipt is final (or the watch
times out) and records the outcome in the ledger.

Examples:
  transfer send --to 0xabc... --amount 0.01 --token ETH --chain 1
  transfer send --to 0xabc... --amount 25 --token USDC -c base`,
	RunE: runSend,
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Watch a hash another wallet already broadcast and record its outcome",
	RunE:  runTrack,
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient address")
	sendCmd.Flags().StringVar(&sendAmount, "amount", "", "amount in human units, e.g. 1.5")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "token symbol, e.g. ETH or USDC")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("amount")
	_ = sendCmd.MarkFlagRequired("token")

	trackCmd.Flags().StringVar(&trackHash, "hash", "", "transaction hash")
	trackCmd.Flags().StringVar(&trackTo, "to", "", "recipient address")
	trackCmd.Flags().StringVar(&trackAmount, "amount", "", "amount in human units")
	trackCmd.Flags().StringVar(&trackToken, "token", "", "token symbol")
	for _, f := range []string{"hash", "to", "amount", "token"} {
		_ = trackCmd.MarkFlagRequired(f)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	r, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer r.close()

	if !r.chain.CanSign() {
		return fmt.Errorf("no private key configured for %s", r.chainInfo.Key)
	}
	sess, err := r.session()
	if err != nil {
		return err
	}

	dispatcher, err := services.NewDispatcher(r.registry)
	if err != nil {
		return err
	}
	watcher, outcomes := r.watcher()
	chains := services.StaticChains{r.chainInfo.ChainID: r.chain}
	transfers := services.NewTransferService(chains, r.registry, dispatcher, watcher)

	sub, err := transfers.Submit(ctx, sess, validator.TransferDraft{
		To:     sendTo,
		Amount: sendAmount,
		Token:  sendToken,
	})
	if err != nil {
		return err
	}

	fmt.Printf("📤 sent %s %s to %s on %s\n", sub.Amount, sub.Token, sub.To, r.chainInfo.Name)
	fmt.Printf("   hash: %s\n", sub.HashHex())
	if waitOrInterrupt(ctx, watcher, "waiting for receipt...") {
		outcomes.print(r.chainInfo)
	}
	return nil
}

func runTrack(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	r, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer r.close()

	sess, err := r.session()
	if err != nil {
		return err
	}

	watcher, outcomes := r.watcher()
	transfers := services.NewTransferService(services.StaticChains{r.chainInfo.ChainID: r.chain}, r.registry, nil, watcher)
	res, err := transfers.Track(ctx, sess, services.TrackRequest{
		Hash:   trackHash,
		To:     trackTo,
		Amount: trackAmount,
		Token:  trackToken,
	})
	if err != nil {
		return err
	}
	if !res.Watching {
		fmt.Printf("ℹ️ %s is already recorded or being watched\n", res.Submission.HashHex())
		return nil
	}
	if waitOrInterrupt(ctx, watcher, fmt.Sprintf("watching %s on %s...", res.Submission.HashHex(), r.chainInfo.Name)) {
		outcomes.print(r.chainInfo)
	}
	return nil
}

// waitOrInterrupt blocks until the watch resolves; an interrupt abandons it and returns false
func waitOrInterrupt(ctx context.Context, watcher *services.ReceiptWatcher, msg string) bool {
	stopSpinner := startSpinner(msg)
	done := make(chan struct{})
	go func() {
		watcher.Wait()
		close(done)
	}()
	select {
	case <-done:
		stopSpinner()
		return true
	case <-ctx.Done():
		stopSpinner()
		fmt.Println("⚠️ interrupted, the transfer stays on chain but is not recorded")
		watcher.Shutdown()
		return false
	}
}

// startSpinner animates msg on a terminal; elsewhere it prints msg once
func startSpinner(msg string) func() {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Println("⏳ " + msg)
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(os.Stdout))
	s.Suffix = " " + msg
	s.Start()
	return func() {
		s.Stop()
		fmt.Println()
	}
}
