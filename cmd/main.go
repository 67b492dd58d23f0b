// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Command media-session runs one side of a real-time video session:
// publish streams a synthetic or IVF-file VP8 source, view answers
// signaling, receives the stream and optionally archives, decodes and
// renders it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	packetlog "github.com/pion/media-session/logging"
	"github.com/pion/media-session/render"
	"github.com/pion/media-session/session"
	"github.com/pion/media-session/source"
	"github.com/pion/media-session/stats"
)

var errInvalidMode = errors.New("invalid mode")

type config struct {
	mode      string
	addr      string
	useWS     bool
	videoFile string
	loopFile  bool
	audio     bool
	archive   string
	decode    bool
	snapshots string
	statsAddr string
	rtpLog    string
	rtcpLog   string
	ccLog     string
}

func parseFlags() *config {
	cfg := &config{}
	flag.StringVar(&cfg.mode, "mode", "publish", "Mode: publish/view")
	flag.StringVar(&cfg.addr, "addr", "localhost:8080", "Signaling address (publish dials it, view listens on it)")
	flag.BoolVar(&cfg.useWS, "ws", false, "Signal over WebSocket instead of HTTP POST")
	flag.StringVar(&cfg.videoFile, "video", "", "IVF file to publish (empty: synthetic VP8 stream)")
	flag.BoolVar(&cfg.loopFile, "loop", false, "Loop the IVF file at EOF")
	flag.BoolVar(&cfg.audio, "audio", false, "Publish an Opus silence audio track")
	flag.StringVar(&cfg.archive, "archive", "", "Base path for received IVF archives")
	flag.BoolVar(&cfg.decode, "decode", false, "Decode received VP8 and run the render loop")
	flag.StringVar(&cfg.snapshots, "snapshots", "", "Directory for PNG snapshots of rendered frames (implies -decode)")
	flag.StringVar(&cfg.statsAddr, "stats-addr", "", "Address for the stats server (empty: disabled)")
	flag.StringVar(&cfg.rtpLog, "rtp-log", "", `RTP packet log ("stdout" or a file path)`)
	flag.StringVar(&cfg.rtcpLog, "rtcp-log", "", `RTCP packet log ("stdout" or a file path)`)
	flag.StringVar(&cfg.ccLog, "cc-log", "", `Congestion control log ("stdout" or a file path)`)
	flag.Parse()

	return cfg
}

func realMain() error {
	cfg := parseFlags()

	switch cfg.mode {
	case "publish":
		return runPublish(cfg)
	case "view":
		return runView(cfg)
	}

	return fmt.Errorf("%w: %q", errInvalidMode, cfg.mode)
}

func packetLogOptions(cfg *config, closers *[]io.Closer) ([]session.Option, error) {
	if cfg.rtpLog == "" && cfg.rtcpLog == "" {
		return nil, nil
	}
	rtpWriter, err := packetlog.GetLogFile(cfg.rtpLog)
	if err != nil {
		return nil, err
	}
	rtcpWriter, err := packetlog.GetLogFile(cfg.rtcpLog)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, rtpWriter, rtcpWriter)

	return []session.Option{session.PacketLogWriter(rtpWriter, rtcpWriter)}, nil
}

func buildVideoSource(cfg *config) (source.Source, error) {
	if cfg.videoFile == "" {
		return source.NewSyntheticEncoderSource()
	}
	var fileOpts []source.FileOption
	if cfg.loopFile {
		fileOpts = append(fileOpts, source.FileLoop())
	}

	return source.NewFileSource(cfg.videoFile, fileOpts...)
}

func runPublish(cfg *config) error {
	videoSource, err := buildVideoSource(cfg)
	if err != nil {
		return err
	}

	var closers []io.Closer
	defer func() { closeAll(closers) }()

	opts, err := packetLogOptions(cfg, &closers)
	if err != nil {
		return err
	}
	if cfg.ccLog != "" {
		ccWriter, err := packetlog.GetLogFile(cfg.ccLog)
		if err != nil {
			return err
		}
		closers = append(closers, ccWriter)
		opts = append(opts, session.CCLogWriter(ccWriter))
	}
	if cfg.audio {
		opts = append(opts, session.AudioSource(source.NewSilenceSource()))
	}
	if cfg.statsAddr != "" {
		statsServer, collector := startStatsServer(cfg.statsAddr)
		started := time.Now()
		opts = append(opts,
			session.OnStateChange(collector.ObserveTransition),
			session.OnTargetBitrate(func(bitsPerSecond int) {
				collector.SetTargetBitrate(bitsPerSecond)
				statsServer.Add(stats.DataPoint{
					Label:     "target_bitrate",
					Timestamp: time.Since(started).Milliseconds(),
					Value:     float64(bitsPerSecond),
				})
			}),
		)
	}

	sender, err := session.NewSender(videoSource, opts...)
	if err != nil {
		return err
	}
	if err := sender.SetupPeerConnection(); err != nil {
		return err
	}

	if cfg.useWS {
		err = sender.SignalWebSocket(fmt.Sprintf("ws://%s/sdp", cfg.addr))
	} else {
		err = sender.SignalHTTP(cfg.addr, "sdp")
	}
	if err != nil {
		return err
	}

	return waitForShutdown(sender)
}

func runView(cfg *config) error {
	var closers []io.Closer
	defer func() { closeAll(closers) }()

	opts, err := packetLogOptions(cfg, &closers)
	if err != nil {
		return err
	}
	if cfg.archive != "" {
		opts = append(opts, session.Archive(cfg.archive))
	}
	decode := cfg.decode || cfg.snapshots != ""
	if decode {
		opts = append(opts, session.DecodeFrames())
	}

	var statsServer *stats.Server
	var collector *stats.Collector
	if cfg.statsAddr != "" {
		statsServer, collector = startStatsServer(cfg.statsAddr)
		opts = append(opts, session.OnStateChange(collector.ObserveTransition))
	}

	receiver, err := session.NewReceiver(opts...)
	if err != nil {
		return err
	}
	if err := receiver.SetupPeerConnection(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if decode {
		if err := startRenderLoop(ctx, cfg, receiver, statsServer, collector); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	if cfg.useWS {
		mux.HandleFunc("/sdp", receiver.SDPWebSocketHandler())
	} else {
		mux.HandleFunc("/sdp", receiver.SDPHandler())
	}
	server := &http.Server{Addr: cfg.addr, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("signaling server: %v", err)
		}
	}()
	defer func() {
		_ = server.Close()
	}()

	return waitForShutdown(receiver)
}

func startRenderLoop(
	ctx context.Context, cfg *config, receiver *session.Controller,
	statsServer *stats.Server, collector *stats.Collector,
) error {
	display := render.Discard
	if cfg.snapshots != "" {
		snapshot, err := render.NewSnapshotDisplay(cfg.snapshots, time.Second)
		if err != nil {
			return err
		}
		display = snapshot
	}

	var loopOpts []render.Option
	if collector != nil {
		var lastTotal uint64
		started := time.Now()
		loopOpts = append(loopOpts, render.WithRateCallback(func(fps float64, total uint64) {
			collector.AddFramesRendered(total - lastTotal)
			lastTotal = total
			statsServer.Add(stats.DataPoint{
				Label:     "render_fps",
				Timestamp: time.Since(started).Milliseconds(),
				Value:     fps,
			})
		}))
	}
	loop, err := render.NewLoop(receiver.FrameBuffer(), display, loopOpts...)
	if err != nil {
		return err
	}
	go func() {
		_ = loop.Run(ctx)
	}()

	return nil
}

func startStatsServer(addr string) (*stats.Server, *stats.Collector) {
	statsServer := stats.New()
	collector := stats.NewCollector(statsServer.Registry())
	go func() {
		if err := statsServer.Start(addr); err != nil {
			log.Printf("stats server: %v", err)
		}
	}()

	return statsServer, collector
}

func waitForShutdown(ctrl *session.Controller) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-interrupt:
		return ctrl.Close("interrupt")
	case <-ctrl.Done():
		return nil
	}
}

func closeAll(closers []io.Closer) {
	for _, closer := range closers {
		_ = closer.Close()
	}
}

func main() {
	if err := realMain(); err != nil {
		log.Fatal(err)
	}
}
