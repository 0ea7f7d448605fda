package packet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"txlog-sol/internal/consts"
	"txlog-sol/internal/logic/core"
	"txlog-sol/internal/logic/feelog"
	"txlog-sol/internal/logic/txadapter"
	"txlog-sol/internal/metrics"
)

// Handler 接收解码后的交易
type Handler interface {
	Handle(ctx context.Context, envs []core.Envelope) []feelog.Record
}

// Packet 一个 UDP 数据报及其来源地址
type Packet struct {
	Data []byte
	Addr netip.Addr
}

const (
	defaultQueueSize = 4096
	defaultMaxBatch  = 128
)

type Options struct {
	ListenAddr string
	QueueSize  int
	Workers    int
	ReadBuffer int
	MaxBatch   int           // 每次交给 Handler 的最大包数
	BatchWait  time.Duration // 凑批最长等待，0 表示只取队列中已有的包
}

// Listener 从 UDP 接收序列化交易，每个数据报一笔交易。
// 读协程只负责收包入队，worker 按批解码并交给 Handler，下游 sink 每批只等待一次；队列满时丢包。
type Listener struct {
	opt     Options
	handler Handler

	mu   sync.Mutex
	conn *net.UDPConn

	pktCh  chan Packet
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logx.Logger
}

func NewListener(opt Options, handler Handler) *Listener {
	if opt.QueueSize <= 0 {
		opt.QueueSize = defaultQueueSize
	}
	if opt.MaxBatch <= 0 {
		opt.MaxBatch = defaultMaxBatch
	}
	if opt.Workers <= 0 {
		opt.Workers = consts.CpuCount
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		opt:     opt,
		handler: handler,
		pktCh:   make(chan Packet, opt.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		Logger:  logx.WithContext(ctx).WithFields(logx.Field("service", "packet_listener")),
	}
}

// Listen 绑定 UDP 端口，Start 前可单独调用以获取实际监听地址
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", l.opt.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolve listen addr %s: %w", l.opt.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", l.opt.ListenAddr, err)
	}
	if l.opt.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(l.opt.ReadBuffer); err != nil {
			l.Infof("set read buffer failed (ignored): %v", err)
		}
	}
	l.conn = conn
	return nil
}

// LocalAddr 返回实际监听地址，未绑定时为 nil
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start 阻塞直到 Stop
func (l *Listener) Start() {
	if err := l.Listen(); err != nil {
		l.Errorf("%v", err)
		return
	}
	l.Infof("listening on %s, workers=%d", l.conn.LocalAddr(), l.opt.Workers)

	for i := 0; i < l.opt.Workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}

	l.readLoop()
	l.wg.Wait()
}

func (l *Listener) Stop() {
	l.cancel()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close()
	}
}

func (l *Listener) readLoop() {
	buf := make([]byte, 2048)
	for {
		n, from, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.ctx.Err() != nil {
				return
			}
			l.Errorf("read udp: %v", err)
			continue
		}
		if n > consts.MaxPacketSize {
			metrics.ReportDecodeError(core.SourceUDP)
			l.Debugf("oversized packet from %s: %d bytes", from, n)
			continue
		}

		// 双栈 socket 上 IPv4 客户端表现为 ::ffff:a.b.c.d，还原为 IPv4
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case l.pktCh <- Packet{Data: data, Addr: from.Addr().Unmap()}:
		default:
			metrics.ReportDropped(core.SourceUDP)
		}
	}
}

func (l *Listener) worker() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case pkt := <-l.pktCh:
			l.process(l.collectBatch(pkt))
		}
	}
}

// collectBatch 以 first 开头凑一批，直到 MaxBatch、BatchWait 超时或队列取空（BatchWait 为 0 时）
func (l *Listener) collectBatch(first Packet) []Packet {
	batch := make([]Packet, 1, l.opt.MaxBatch)
	batch[0] = first

	var deadline <-chan time.Time
	if l.opt.BatchWait > 0 {
		timer := time.NewTimer(l.opt.BatchWait)
		defer timer.Stop()
		deadline = timer.C
	}

	for len(batch) < l.opt.MaxBatch {
		if deadline == nil {
			select {
			case pkt := <-l.pktCh:
				batch = append(batch, pkt)
			default:
				return batch
			}
			continue
		}
		select {
		case pkt := <-l.pktCh:
			batch = append(batch, pkt)
		case <-deadline:
			return batch
		case <-l.ctx.Done():
			return batch
		}
	}
	return batch
}

func (l *Listener) process(batch []Packet) {
	envs := make([]core.Envelope, 0, len(batch))
	for _, pkt := range batch {
		tx, err := txadapter.DecodeWireTx(pkt.Data)
		if err != nil {
			metrics.ReportDecodeError(core.SourceUDP)
			l.Debugf("decode packet from %s failed: %v", pkt.Addr, err)
			continue
		}
		envs = append(envs, core.Envelope{
			Meta: core.ArrivalMeta{Addr: pkt.Addr, Source: core.SourceUDP},
			Tx:   tx,
		})
	}
	if len(envs) == 0 {
		return
	}
	l.handler.Handle(l.ctx, envs)
}
