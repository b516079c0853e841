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

// Command vsbridge-shelltest is a standalone harness that plays the shell
// side of the protocol (package protocol) over stdin/stdout, backed by
// package shellloopback. It lets the bridge facade's wire behavior be
// exercised against a separate OS process rather than the in-memory fake
// used by bridge's own tests, without requiring a real PowerShell child
// (out of scope per spec.md §1). Each stdin line is either a
// "SET-RESULT <command>=<literal result>" directive or a rendered
// protocol.Command line; the harness replies "OK" (followed by the command's
// stdout when it has any) or "ERROR: <message>".
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/vsbridge/vsbridge/internal/shellloopback"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "vsbridge-shelltest"
	myApp.Usage = "line-oriented loopback shell harness"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "timeoutms",
			Value: 5000,
			Usage: "per-command channel timeout in milliseconds",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		serve(c.Int("timeoutms"))
		return nil
	}
	if err := myApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(timeoutMS int) {
	shell := shellloopback.New(time.Duration(timeoutMS) * time.Millisecond)
	handler := shell.Handler()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "SET-RESULT "); ok {
			name, result, found := strings.Cut(rest, "=")
			if !found {
				fmt.Fprintln(writer, "ERROR: SET-RESULT requires <command>=<result>")
			} else {
				shell.SetCommandResult(name, []byte(result))
				fmt.Fprintln(writer, "OK")
			}
			writer.Flush()
			continue
		}

		res := handler(context.Background(), line)
		if res.Err != nil {
			fmt.Fprintln(writer, "ERROR:", res.Err)
		} else if res.Stderr != "" {
			fmt.Fprintln(writer, "ERROR:", res.Stderr)
		} else if res.Stdout != "" {
			fmt.Fprintln(writer, "OK", res.Stdout)
		} else {
			fmt.Fprintln(writer, "OK")
		}
		writer.Flush()
	}
}
