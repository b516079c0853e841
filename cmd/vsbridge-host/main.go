// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command vsbridge-host is the host-side CLI entrypoint: it wires the
// Bridge Facade (package bridge) to a shell session and drives one
// demonstration transcript (a zero-copy Publish read back with Read, then a
// Fetch), adapted from kcptun's client/main.go flag
// parsing, JSON config override, and pprof/log wiring. Launching and
// managing a real PowerShell child's lifecycle is out of scope (spec.md
// §1); this binary drives package shellloopback instead, so the transcript
// runs identically on any platform even though the segment/event backend it
// exercises targets Windows shared memory in production.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/vsbridge/vsbridge/bridge"
	"github.com/vsbridge/vsbridge/internal/config"
	"github.com/vsbridge/vsbridge/internal/metrics"
	"github.com/vsbridge/vsbridge/internal/shelldriver"
	"github.com/vsbridge/vsbridge/internal/shellloopback"
	"github.com/vsbridge/vsbridge/protocol"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "vsbridge-host"
	myApp.Usage = "drives a shared-memory bridge session against a shell"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "prefix",
			Value: "vsbridge",
			Usage: "channel name prefix",
		},
		cli.IntFlag{
			Name:  "framebytes",
			Value: 4 << 20,
			Usage: "default frame size in bytes",
		},
		cli.IntFlag{
			Name:  "publishtimeoutms",
			Value: 30_000,
			Usage: "single-shot or per-chunk ack timeout in milliseconds",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.StringFlag{
			Name:  "metricslog",
			Value: "",
			Usage: "collect channel metrics to file, aware of timeformat in golang, like: ./metrics-20060102.log",
		},
		cli.IntFlag{
			Name:  "metricsperiod",
			Value: 60,
			Usage: "metrics collection period, in seconds",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress the banner",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
		},
	}
	myApp.Action = run
	if err := myApp.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	cfg.ChannelNamePrefix = c.String("prefix")
	cfg.DefaultFrameBytes = uint64(c.Int("framebytes"))
	cfg.PublishTimeoutMS = c.Int("publishtimeoutms")
	cfg.Quiet = c.Bool("quiet")
	cfg.Pprof = c.Bool("pprof")

	if path := c.String("c"); path != "" {
		if err := config.ParseJSONFile(&cfg, path); err != nil {
			return err
		}
	}

	if path := c.String("log"); path != "" {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		defer f.Close()
		log.SetOutput(f)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !cfg.Quiet {
		color.Green("vsbridge-host %s", VERSION)
		color.Cyan("channel prefix: %s, frame bytes: %d", cfg.ChannelNamePrefix, cfg.DefaultFrameBytes)
	}

	if c.String("metricslog") != "" {
		go metrics.CSVLogger(metrics.DefaultCounters, c.String("metricslog"), time.Duration(c.Int("metricsperiod"))*time.Second)
	}
	if cfg.Pprof {
		go http.ListenAndServe(":6060", nil)
	}

	shell := shellloopback.New(cfg.PublishTimeout())
	shell.SetCommandResult("Get-Date", []byte(time.Now().Format(time.RFC3339)))

	b := bridge.New(cfg, shelldriver.NewSession(shell.Handler()), logger)
	return runDemo(context.Background(), b)
}

func runDemo(ctx context.Context, b *bridge.Bridge) error {
	pr, err := b.Publish(ctx, []byte("hello from the host"), "$greeting", protocol.FormatString, 0, "", true)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	view, err := b.Read(pr)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	fmt.Println("published+read:", view.String())
	if err := view.Close(); err != nil {
		return err
	}

	result, err := b.Fetch(ctx, "Get-Date", protocol.FormatString, 0, 0)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	fmt.Println("fetched:", result)
	return nil
}
