package packet

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txlog-sol/internal/consts"
	"txlog-sol/internal/logic/core"
	"txlog-sol/internal/logic/feelog"
	"txlog-sol/internal/types"
)

type chanHandler struct {
	ch chan core.Envelope
}

func (h *chanHandler) Handle(_ context.Context, envs []core.Envelope) []feelog.Record {
	for _, env := range envs {
		h.ch <- env
	}
	return nil
}

// legacyTx 一个签名、两个账户（payer + Compute Budget），一条 SetComputeUnitPrice 指令
func legacyTx(sig types.Signature) []byte {
	payer := types.Pubkey{5}
	budget := consts.ComputeBudgetProgram
	b := []byte{1}
	b = append(b, sig[:]...)
	b = append(b, 1, 0, 1)
	b = append(b, 2)
	b = append(b, payer[:]...)
	b = append(b, budget[:]...)
	b = append(b, make([]byte, 32)...)
	b = append(b, 1)                            // 1 条指令
	b = append(b, 1, 0, 9)                      // program=1, 0 个账户, 9 字节数据
	b = append(b, 3, 0xe8, 3, 0, 0, 0, 0, 0, 0) // price = 1000
	return b
}

func startListener(t *testing.T, network, addr string) (*Listener, *chanHandler) {
	h := &chanHandler{ch: make(chan core.Envelope, 4)}
	l := NewListener(Options{ListenAddr: addr, Workers: 2, QueueSize: 16}, h)
	if err := l.Listen(); err != nil {
		t.Skipf("%s not available: %v", network, err)
	}
	go l.Start()
	t.Cleanup(l.Stop)
	return l, h
}

func send(t *testing.T, network string, to net.Addr, data []byte) {
	conn, err := net.Dial(network, to.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func TestListener_IPv4(t *testing.T) {
	l, h := startListener(t, "udp4", "127.0.0.1:0")

	sig := types.Signature{0x11, 0x22}
	send(t, "udp4", l.LocalAddr(), legacyTx(sig))

	select {
	case env := <-h.ch:
		assert.Equal(t, netip.MustParseAddr("127.0.0.1"), env.Meta.Addr)
		assert.Equal(t, core.SourceUDP, env.Meta.Source)
		assert.Equal(t, sig, env.Tx.Signature())
		// 只有 Compute Budget 指令，默认 CU 为 0
		assert.Equal(t, uint64(5000), feelog.EstimateTx(env.Tx).Fee)
	case <-time.After(3 * time.Second):
		t.Fatal("no envelope received")
	}
}

func TestListener_IPv6(t *testing.T) {
	l, h := startListener(t, "udp6", "[::1]:0")

	send(t, "udp6", l.LocalAddr(), legacyTx(types.Signature{0x33}))

	select {
	case env := <-h.ch:
		assert.True(t, env.Meta.Addr.Is6())
		assert.Equal(t, "::1", feelog.FormatAddr(env.Meta.Addr))
	case <-time.After(3 * time.Second):
		t.Fatal("no envelope received")
	}
}

func TestListener_DropsGarbage(t *testing.T) {
	l, h := startListener(t, "udp4", "127.0.0.1:0")

	send(t, "udp4", l.LocalAddr(), []byte{0xff, 0xfe})
	send(t, "udp4", l.LocalAddr(), legacyTx(types.Signature{0x44}))

	select {
	case env := <-h.ch:
		// 垃圾包被丢弃，只收到合法交易
		assert.Equal(t, types.Signature{0x44}, env.Tx.Signature())
	case <-time.After(3 * time.Second):
		t.Fatal("no envelope received")
	}
}

func queued(l *Listener, n int) {
	for i := 0; i < n; i++ {
		l.pktCh <- Packet{Data: []byte{byte(i)}}
	}
}

func TestCollectBatch_StopsAtMaxBatch(t *testing.T) {
	l := NewListener(Options{MaxBatch: 3, QueueSize: 16}, &chanHandler{})
	t.Cleanup(l.Stop)
	queued(l, 5)

	batch := l.collectBatch(Packet{Data: []byte{0xff}})
	assert.Len(t, batch, 3)
	assert.Equal(t, []byte{0xff}, batch[0].Data)
	assert.Len(t, l.pktCh, 3)
}

func TestCollectBatch_DrainsQueueWithoutWaiting(t *testing.T) {
	l := NewListener(Options{MaxBatch: 10, QueueSize: 16}, &chanHandler{})
	t.Cleanup(l.Stop)
	queued(l, 4)

	start := time.Now()
	batch := l.collectBatch(Packet{})
	assert.Len(t, batch, 5)
	assert.Empty(t, l.pktCh)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestCollectBatch_WaitsForLatePackets(t *testing.T) {
	l := NewListener(Options{MaxBatch: 10, QueueSize: 16, BatchWait: 200 * time.Millisecond}, &chanHandler{})
	t.Cleanup(l.Stop)

	go func() {
		time.Sleep(10 * time.Millisecond)
		queued(l, 2)
	}()
	batch := l.collectBatch(Packet{})
	assert.Len(t, batch, 3)
}

type batchHandler struct {
	sizes chan int
}

func (h *batchHandler) Handle(_ context.Context, envs []core.Envelope) []feelog.Record {
	h.sizes <- len(envs)
	return nil
}

func TestListener_ProcessHandsWholeBatch(t *testing.T) {
	h := &batchHandler{sizes: make(chan int, 4)}
	l := NewListener(Options{}, h)
	t.Cleanup(l.Stop)

	l.process([]Packet{
		{Data: legacyTx(types.Signature{1}), Addr: netip.MustParseAddr("10.0.0.1")},
		{Data: []byte{0xff, 0xfe}},
		{Data: legacyTx(types.Signature{2}), Addr: netip.MustParseAddr("10.0.0.2")},
	})
	// 解码失败的包被跳过，其余一次交给 Handler
	require.Len(t, h.sizes, 1)
	assert.Equal(t, 2, <-h.sizes)

	l.process([]Packet{{Data: []byte{1}}})
	assert.Empty(t, h.sizes)
}
