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

// Package metrics provides process-wide atomic counters for channel
// activity, adapted from kcptun's std/snmp.go (a global kcp.DefaultSnmp
// counters struct periodically flushed to CSV). Here the counters track
// publications, acks, timeouts, and protocol errors per direction instead of
// KCP segment counters, repurposed to the bridge's own concerns.
package metrics

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Counters are the process-wide counters. Use DefaultCounters unless a test
// needs an isolated instance.
type Counters struct {
	H2SPublications atomic.Uint64
	H2SAcks         atomic.Uint64
	H2STimeouts     atomic.Uint64
	S2HPublications atomic.Uint64
	S2HAcks         atomic.Uint64
	S2HTimeouts     atomic.Uint64
	ProtocolErrors  atomic.Uint64
	ShellErrors     atomic.Uint64
}

// DefaultCounters is the counters instance the bridge facade increments by
// default.
var DefaultCounters = &Counters{}

// Header returns the CSV column names, in the same order as ToSlice.
func (c *Counters) Header() []string {
	return []string{
		"H2SPublications", "H2SAcks", "H2STimeouts",
		"S2HPublications", "S2HAcks", "S2HTimeouts",
		"ProtocolErrors", "ShellErrors",
	}
}

// ToSlice snapshots every counter as a string, in Header order.
func (c *Counters) ToSlice() []string {
	return []string{
		fmt.Sprint(c.H2SPublications.Load()),
		fmt.Sprint(c.H2SAcks.Load()),
		fmt.Sprint(c.H2STimeouts.Load()),
		fmt.Sprint(c.S2HPublications.Load()),
		fmt.Sprint(c.S2HAcks.Load()),
		fmt.Sprint(c.S2HTimeouts.Load()),
		fmt.Sprint(c.ProtocolErrors.Load()),
		fmt.Sprint(c.ShellErrors.Load()),
	}
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	c.H2SPublications.Store(0)
	c.H2SAcks.Store(0)
	c.H2STimeouts.Store(0)
	c.S2HPublications.Store(0)
	c.S2HAcks.Store(0)
	c.S2HTimeouts.Store(0)
	c.ProtocolErrors.Store(0)
	c.ShellErrors.Store(0)
}

// CSVLogger periodically appends a snapshot of c to a time-formatted path,
// exactly as kcptun's SnmpLogger formats its log path with time.Now().Format
// and writes a CSV header only to an empty file.
func CSVLogger(c *Counters, path string, interval time.Duration) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			return
		}
		w := csv.NewWriter(f)
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(append([]string{"Unix"}, c.Header()...)); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, c.ToSlice()...)); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}
