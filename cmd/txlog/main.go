package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	zerosvc "github.com/zeromicro/go-zero/core/service"

	"txlog-sol/internal/config"
	"txlog-sol/internal/logic/grpc"
	"txlog-sol/internal/logic/packet"
	"txlog-sol/internal/metrics"
	"txlog-sol/internal/svc"
	"txlog-sol/pkg/logger"
)

var configFile = flag.String("f", "etc/txlog.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
			logger.Sync()
			os.Exit(1)
		}
	}()

	flag.Parse()

	var c config.TxLogConfig
	conf.MustLoad(*configFile, &c)

	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		panic(err)
	}
	defer logger.Sync()

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		panic(err)
	}
	defer serviceContext.Close()

	sg := zerosvc.NewServiceGroup()

	if c.MetricsConf.ListenAddr != "" {
		sg.Add(metrics.NewServer(c.MetricsConf.ListenAddr))
	}

	if c.PacketConf.Enabled {
		listener := packet.NewListener(packet.Options{
			ListenAddr: c.PacketConf.ListenAddr,
			QueueSize:  c.PacketConf.QueueSize,
			Workers:    c.PacketConf.Workers,
			ReadBuffer: c.PacketConf.ReadBuffer,
			MaxBatch:   c.PacketConf.BatchSize,
			BatchWait:  time.Duration(c.PacketConf.BatchWaitMs) * time.Millisecond,
		}, serviceContext.Processor)
		if err := listener.Listen(); err != nil {
			panic(err)
		}
		sg.Add(listener)
	}

	if c.Grpc.Enabled {
		blockChan := make(chan grpc.BlockUpdate, 200)
		grpcService, err := grpc.NewStreamManager(c.Grpc, blockChan)
		if err != nil {
			panic(err)
		}
		sg.Add(grpcService)
		sg.Add(grpc.NewBlockProcessor(serviceContext.Processor, blockChan))
	}

	if !c.PacketConf.Enabled && !c.Grpc.Enabled {
		logger.Warnf("no transaction source enabled, only metrics will be served")
	}

	logger.Infof("Starting txlog services")

	// ServiceGroup.Start 阻塞，放到后台
	go sg.Start()

	// 等待退出信号
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infof("Shutting down services...")
	sg.Stop()
}
