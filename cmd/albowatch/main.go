package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"albowatch/internal/app"
	"albowatch/internal/config"
	"albowatch/internal/secrets"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var (
		cfgPath    string
		watch      bool
		explainID  string
		storeToken string
		dropToken  string
	)
	flag.StringVar(&cfgPath, "config", "./albowatch.yaml", "path to config file (yaml or json); a missing file means defaults")
	flag.BoolVar(&watch, "watch", false, "keep running and check on watch.schedule")
	flag.StringVar(&explainID, "explain", "", "show how the filter judges the record with this id, then exit")
	flag.StringVar(&storeToken, "store-token", "", "read a bot token from stdin and store it in the OS keychain under this account")
	flag.StringVar(&dropToken, "delete-token", "", "remove the bot token stored in the OS keychain under this account")
	flag.Parse()

	switch {
	case storeToken != "":
		return runStoreToken(storeToken)
	case dropToken != "":
		if err := secrets.DeleteTelegramToken(dropToken); err != nil {
			fmt.Fprintln(os.Stderr, "delete token:", err)
			return app.ExitConfig
		}
		fmt.Fprintf(os.Stderr, "token for %q removed from the keychain\n", dropToken)
		return app.ExitOK
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(config.NewManager(cfgPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return app.ExitConfig
	}

	code := run(ctx, a, watch, explainID)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := a.Close(closeCtx); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
	return code
}

func run(ctx context.Context, a *app.App, watch bool, explainID string) int {
	switch {
	case explainID != "":
		if _, err := a.Explain(ctx, explainID, os.Stdout); err != nil {
			if errors.Is(err, app.ErrNotListed) {
				return app.ExitOK
			}
			fmt.Fprintln(os.Stderr, "explain:", err)
			return app.ExitAborted
		}
		return app.ExitOK
	case watch:
		if err := a.Watch(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "fatal watch:", err)
			return app.ExitConfig
		}
		return app.ExitOK
	default:
		return a.RunOnce(ctx).ExitCode()
	}
}

func runStoreToken(account string) int {
	fmt.Fprintf(os.Stderr, "paste the bot token for %q and press enter: ", account)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		fmt.Fprintln(os.Stderr, "\nno token read")
		return app.ExitConfig
	}
	if err := secrets.SetTelegramToken(account, strings.TrimSpace(sc.Text())); err != nil {
		fmt.Fprintln(os.Stderr, "store token:", err)
		return app.ExitConfig
	}
	fmt.Fprintf(os.Stderr, "token stored; set telegram.keyring_account: %s\n", account)
	return app.ExitOK
}
