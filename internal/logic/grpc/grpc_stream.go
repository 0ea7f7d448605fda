package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/zeromicro/go-zero/core/logx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"txlog-sol/internal/config"
)

// BlockUpdate 推送给 BlockProcessor 的区块，Peer 为当前连接的对端地址
type BlockUpdate struct {
	Block *pb.SubscribeUpdateBlock
	Peer  netip.Addr
}

type StreamManager struct {
	mu                    sync.Mutex                // 保护以下连接状态
	conn                  *grpc.ClientConn          // gRPC 连接
	client                pb.GeyserClient           // Geyser 客户端
	stream                pb.Geyser_SubscribeClient // 当前订阅流
	stopped               bool                      // 是否已停止
	reconnectAttempts     int                       // 连续重连次数
	reconnectInterval     time.Duration             // 重连基础间隔
	xToken                string                    // x-token 认证
	streamPingIntervalSec int                       // 应用层 ping 间隔（秒）
	blockRecvTimeoutSec   int                       // 超过该时间未收到 block 则重连
	sendTimeoutSec        int                       // Send 超时（秒）
	blockChan             chan<- BlockUpdate        // 区块输出通道
	connCtx               context.Context
	connCancel            context.CancelFunc

	peer atomic.Pointer[netip.Addr] // 最近一次拨号的对端 IP
	logx.Logger
}

func NewStreamManager(c config.GrpcConfig, blockChan chan<- BlockUpdate) (*StreamManager, error) {
	m := &StreamManager{
		reconnectInterval:     time.Duration(c.ReconnectIntervalSec) * time.Second,
		xToken:                c.XToken,
		streamPingIntervalSec: c.StreamPingIntervalSec,
		blockRecvTimeoutSec:   c.BlockRecvTimeoutSec,
		sendTimeoutSec:        c.SendTimeoutSec,
		blockChan:             blockChan,
		Logger:                logx.WithContext(context.Background()).WithFields(logx.Field("service", "grpc_stream")),
	}

	configTls := &tls.Config{
		InsecureSkipVerify: true,
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), time.Duration(c.ConnectTimeoutSec)*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		c.Endpoint,
		grpc.WithTransportCredentials(credentials.NewTLS(configTls)),
		grpc.WithContextDialer(m.dial),
		grpc.WithInitialWindowSize(int32(c.InitialWindowSize)),
		grpc.WithInitialConnWindowSize(int32(c.InitialConnWindowSize)),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(c.MaxCallSendMsgSize),
			grpc.MaxCallRecvMsgSize(c.MaxCallRecvMsgSize),
		),
		grpc.WithBlock(),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                time.Duration(c.KeepalivePingIntervalSec) * time.Second,
			Timeout:             time.Duration(c.KeepalivePingTimeoutSec) * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", c.Endpoint, err)
	}

	m.conn = conn
	m.client = pb.NewGeyserClient(conn)
	return m, nil
}

// dial 记录底层 TCP 连接的对端地址，作为 gRPC 来源交易的到达地址
func (m *StreamManager) dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	peerAddr := parsePeerAddr(conn.RemoteAddr())
	m.peer.Store(&peerAddr)
	return conn, nil
}

func parsePeerAddr(addr net.Addr) netip.Addr {
	if addr == nil {
		return netip.Addr{}
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.Addr{}
	}
	return ap.Addr().Unmap()
}

func (m *StreamManager) peerAddr() netip.Addr {
	if p := m.peer.Load(); p != nil {
		return *p
	}
	return netip.Addr{}
}

func (m *StreamManager) Start() {
	m.mustConnect()
}

func (m *StreamManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.Errorf("close grpc conn: %v", err)
		}
	}
}

// 循环直到连接成功或已停止
func (m *StreamManager) mustConnect() {
	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		if m.reconnectAttempts > 0 {
			if m.reconnectAttempts > 3 {
				time.Sleep(m.reconnectInterval * 2)
			} else {
				time.Sleep(m.reconnectInterval)
			}
		}
		m.Infof("connecting... attempt %d", m.reconnectAttempts+1)
		m.reconnectAttempts++
		err := m.connect()
		if err == nil {
			return
		}
		m.Errorf("connect failed: %v, will retry...", err)
	}
}

func buildSubscribeRequest() *pb.SubscribeRequest {
	blocks := make(map[string]*pb.SubscribeRequestFilterBlocks)
	blocks["blocks"] = &pb.SubscribeRequestFilterBlocks{
		IncludeTransactions: boolPtr(true),  // 需要交易本体
		IncludeAccounts:     boolPtr(false), // 账户变化不关心
		IncludeEntries:      boolPtr(false),
	}
	commitment := pb.CommitmentLevel_CONFIRMED
	return &pb.SubscribeRequest{
		Blocks:     blocks,
		Commitment: &commitment,
	}
}

// connect 只尝试一次
func (m *StreamManager) connect() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return errors.New("manager is stopped")
	}
	defer m.mu.Unlock()

	// 先关闭旧的 context，让旧 goroutine 退出
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.connCtx, m.connCancel = context.WithCancel(context.Background())

	metaCtx := metadata.NewOutgoingContext(
		m.connCtx,
		metadata.New(map[string]string{"x-token": m.xToken}),
	)
	stream, err := m.client.Subscribe(metaCtx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	req := buildSubscribeRequest()
	err = sendWithTimeout(m.connCtx, stream.Send, req, time.Duration(m.sendTimeoutSec)*time.Second)
	if err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}

	m.stream = stream
	m.reconnectAttempts = 0
	m.Infof("connection established, peer=%v", m.peerAddr())

	go m.pingLoop(m.connCtx, stream)
	go m.blockRecvLoop(m.connCtx, stream)

	return nil
}

func (m *StreamManager) blockRecvLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	last := time.Now()
	blockTimeout := time.Duration(m.blockRecvTimeoutSec) * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		update, err := stream.Recv()
		now := time.Now()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Recv 出错后该 stream 不可再用，统一重连
			if errors.Is(err, io.EOF) {
				m.Infof("stream closed by server (EOF), will reconnect")
			} else {
				m.Errorf("stream error: %v, will reconnect", err)
			}
			m.reconnect()
			return
		}

		if u, ok := update.GetUpdateOneof().(*pb.SubscribeUpdate_Block); ok {
			if u.Block.BlockTime != nil {
				m.Debugf("received block at slot %v, latency to blockTime: %v ms",
					u.Block.Slot, now.UnixMilli()-u.Block.BlockTime.Timestamp*1000)
			}
			select {
			case m.blockChan <- BlockUpdate{Block: u.Block, Peer: m.peerAddr()}:
			case <-ctx.Done():
				return
			}
			last = now
		}

		if m.reconnectIfBlockTimeout(last, blockTimeout) {
			return
		}
	}
}

// 带超时的 Send
func sendWithTimeout[T any](ctx context.Context, sendFunc func(T) error, req T, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sendFunc(req)
	}()

	select {
	case <-timeoutCtx.Done():
		return timeoutCtx.Err()
	case err := <-done:
		return err
	}
}

// 应用层心跳，失败只记日志
func (m *StreamManager) pingLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	if m.streamPingIntervalSec <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(m.streamPingIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingReq := &pb.SubscribeRequest{
				Ping: &pb.SubscribeRequestPing{Id: 1},
			}
			err := sendWithTimeout(ctx, stream.Send, pingReq, time.Duration(m.sendTimeoutSec)*time.Second)
			if err != nil {
				m.Errorf("ping failed: %v", err)
			}
		}
	}
}

func (m *StreamManager) reconnectIfBlockTimeout(last time.Time, timeout time.Duration) bool {
	if timeout > 0 && time.Since(last) > timeout {
		m.Errorf("no block received in %v, reconnecting", timeout)
		m.reconnect()
		return true
	}
	return false
}

func (m *StreamManager) reconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.mu.Unlock()

	go m.mustConnect()
}

func boolPtr(b bool) *bool {
	return &b
}
