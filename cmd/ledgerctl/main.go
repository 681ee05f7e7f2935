package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/status"

	grpcpool "github.com/JoeShih716/go-sls-ledger/pkg/grpc"
	"github.com/JoeShih716/go-sls-ledger/pkg/ledgerapi"
	"github.com/JoeShih716/go-sls-ledger/pkg/logger"
)

const usage = `usage: ledgerctl [-addr host:port] [-v] <command> [flags]

commands:
  create    -name NAME -denomination USD
  deposit   -account ID -amount N -denomination USD [-key K]
  transfer  -from ID -to ID -amount N -denomination USD [-key K]
  account   -id ID
  entries   -id ID
  bench     -from ID -to ID [-count N] [-concurrency N] [-amount N] [-denomination USD]
`

func main() {
	addr := flag.String("addr", "localhost:50051", "ledger gRPC address")
	verbose := flag.Bool("v", false, "log every RPC")
	timeout := flag.Duration("timeout", 5*time.Second, "per-command timeout (bench ignores it)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Prefix: "ledgerctl"}, os.Stderr)

	pool := grpcpool.NewPool(grpcpool.WithInterceptor(grpcpool.LoggingInterceptor(log)))
	defer pool.Close() //nolint:errcheck

	conn, err := pool.GetConnection(*addr)
	if err != nil {
		log.Error("connect failed", "addr", *addr, "error", err)
		os.Exit(1)
	}
	c := ledgerapi.NewLedgerServiceClient(conn)

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "bench" {
		err = runBench(c, log, args)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		err = runCommand(ctx, c, cmd, args)
		cancel()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, c ledgerapi.LedgerServiceClient, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	switch cmd {
	case "create":
		name := fs.String("name", "", "account name")
		denom := fs.String("denomination", "USD", "currency code")
		_ = fs.Parse(args)
		resp, err := c.CreateAccount(ctx, &ledgerapi.CreateAccountRequest{Name: *name, Denomination: *denom})
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "deposit":
		account := fs.String("account", "", "account id")
		amount := fs.Int64("amount", 0, "amount in minor units")
		denom := fs.String("denomination", "USD", "currency code")
		key := fs.String("key", "", "idempotency key")
		_ = fs.Parse(args)
		resp, err := c.Deposit(ctx, &ledgerapi.DepositRequest{
			AccountID: *account, Amount: *amount, Denomination: *denom, IdempotencyKey: *key,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "transfer":
		from := fs.String("from", "", "debtor account id")
		to := fs.String("to", "", "creditor account id")
		amount := fs.Int64("amount", 0, "amount in minor units")
		denom := fs.String("denomination", "USD", "currency code")
		key := fs.String("key", "", "idempotency key")
		_ = fs.Parse(args)
		resp, err := c.Transfer(ctx, &ledgerapi.TransferRequest{
			DebtorAccountID: *from, CreditorAccountID: *to, Amount: *amount, Denomination: *denom, IdempotencyKey: *key,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "account":
		id := fs.String("id", "", "account id")
		_ = fs.Parse(args)
		resp, err := c.GetAccount(ctx, &ledgerapi.GetAccountRequest{AccountID: *id})
		if err != nil {
			return err
		}
		return printJSON(resp.Account)

	case "entries":
		id := fs.String("id", "", "account id")
		_ = fs.Parse(args)
		resp, err := c.ListEntries(ctx, &ledgerapi.ListEntriesRequest{AccountID: *id})
		if err != nil {
			return err
		}
		return printJSON(resp.Entries)

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// runBench 以固定併發量打 Transfer，統計成功、拒絕與失敗數量以及 TPS
func runBench(c ledgerapi.LedgerServiceClient, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	from := fs.String("from", "", "debtor account id")
	to := fs.String("to", "", "creditor account id")
	totalCount := fs.Int("count", 10000, "number of transfers")
	concurrency := fs.Int("concurrency", 100, "in-flight requests")
	amount := fs.Int64("amount", 1, "amount per transfer")
	denom := fs.String("denomination", "USD", "currency code")
	_ = fs.Parse(args)

	if *from == "" || *to == "" {
		return errors.New("bench needs -from and -to")
	}
	if *concurrency <= 0 {
		*concurrency = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	var (
		wg                     sync.WaitGroup
		ok, rejected, failures atomic.Int64
	)
	sem := make(chan struct{}, *concurrency)
	startTime := time.Now()

	for i := 0; i < *totalCount; i++ {
		sem <- struct{}{}
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := c.Transfer(ctx, &ledgerapi.TransferRequest{
				DebtorAccountID:   *from,
				CreditorAccountID: *to,
				Amount:            *amount,
				Denomination:      *denom,
				IdempotencyKey:    uuid.NewString(),
			})
			switch {
			case err == nil:
				ok.Add(1)
			case reasonOf(err) == ledgerapi.ReasonTransferRejected:
				rejected.Add(1)
			default:
				failures.Add(1)
				if idx%1000 == 0 {
					log.Warn("transfer failed", "idx", idx, "error", err)
				}
			}
		}(i)
	}

	wg.Wait()

	elapsed := time.Since(startTime)
	fmt.Printf("Completed %d requests in %v (ok=%d rejected=%d failed=%d)\n",
		*totalCount, elapsed, ok.Load(), rejected.Load(), failures.Load())
	fmt.Printf("TPS: %.2f\n", float64(*totalCount)/elapsed.Seconds())
	return nil
}

func reasonOf(err error) string {
	if info := ledgerapi.ErrorInfoOf(err); info != nil {
		return info.Reason
	}
	return ""
}

func printError(err error) {
	st, _ := status.FromError(err)
	if info := ledgerapi.ErrorInfoOf(err); info != nil {
		fmt.Fprintf(os.Stderr, "error: %s (%s", st.Message(), info.Reason)
		if r := info.Metadata[ledgerapi.MetadataRejectReason]; r != "" {
			fmt.Fprintf(os.Stderr, ": %s", r)
		}
		fmt.Fprintln(os.Stderr, ")")
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
