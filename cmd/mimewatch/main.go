// Command mimewatch runs the milter server. It reloads its configuration
// and rebinds the listener on SIGHUP and exits cleanly on SIGINT/SIGTERM;
// either signal first broadcasts shutdown to all live sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/aknrt/mimewatch"
	"github.com/aknrt/mimewatch/internal/config"
	"github.com/aknrt/mimewatch/internal/logging"
)

const shutdownGrace = 5 * time.Second

func main() {
	configPath := flag.String("config", "mimewatch.conf", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimewatch: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mimewatch: bind %s: %v\n", cfg.Listen, err)
			os.Exit(1)
		}
		serveLn := ln
		if cfg.MaxConnections > 0 {
			serveLn = netutil.LimitListener(ln, cfg.MaxConnections)
		}

		srv := mimewatch.NewServer(
			mimewatch.WithReadTimeout(cfg.ClientTimeout),
		)
		done := make(chan error, 1)
		go func() {
			done <- srv.Serve(serveLn)
		}()
		logging.Printf("listening on %s (client timeout %s)", ln.Addr(), cfg.ClientTimeout)

		var got os.Signal
		select {
		case got = <-sig:
		case err := <-done:
			if err != nil && !errors.Is(err, mimewatch.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "mimewatch: serve: %v\n", err)
				os.Exit(1)
			}
			got = syscall.SIGTERM
		}

		if got == syscall.SIGHUP {
			logging.Printf("reload: rebinding listener")
			_ = srv.Close()
			<-done
			if next, err := config.Load(*configPath); err != nil {
				logging.Printf("reload failed, keeping previous configuration: %v", err)
			} else {
				cfg = next
			}
			continue
		}

		logging.Printf("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		_ = srv.Shutdown(ctx)
		cancel()
		os.Exit(0)
	}
}
