// replay 从 RPC 节点拉取一笔已确认交易并输出对应的 txlog 行，用于核对线上日志。
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"time"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/rpc"

	"txlog-sol/internal/logic/core"
	"txlog-sol/internal/logic/feelog"
	"txlog-sol/internal/logic/txadapter"
	"txlog-sol/internal/types"
	"txlog-sol/pkg/logger"
)

var (
	signature = flag.String("sig", "", "base58 transaction signature")
	endpoint  = flag.String("rpc", rpc.MainnetRPCEndpoint, "solana rpc endpoint")
	timeout   = flag.Duration("timeout", 15*time.Second, "rpc timeout")
)

func main() {
	flag.Parse()
	if err := logger.Init(logger.LogOption{Format: "console", Level: "info"}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Errorf("replay failed: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	if _, err := types.SignatureFromBase58(*signature); err != nil {
		return fmt.Errorf("invalid -sig %q: %w", *signature, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := client.NewClient(*endpoint).GetTransaction(ctx, *signature)
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if res == nil {
		return fmt.Errorf("transaction %s not found", *signature)
	}

	tx, err := txadapter.AdaptSdkTx(&res.Transaction)
	if err != nil {
		return fmt.Errorf("adapt transaction: %w", err)
	}

	addr, err := resolveHostAddr(ctx, *endpoint)
	if err != nil {
		logger.Warnf("resolve rpc host failed, address will be unknown: %v", err)
	}
	feelog.LogTx(core.ArrivalMeta{Addr: addr, Source: core.SourceRpc}, tx)
	return nil
}

// resolveHostAddr 取 RPC 地址主机名对应的第一个 IP，IP 字面量不查 DNS
func resolveHostAddr(ctx context.Context, rawURL string) (netip.Addr, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return netip.Addr{}, err
	}
	host := u.Hostname()
	if host == "" {
		return netip.Addr{}, fmt.Errorf("no host in %q", rawURL)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("no address for %s", host)
	}
	return addrs[0].Unmap(), nil
}
