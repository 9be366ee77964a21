// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package stats tracks exchange statistics and error rates for a session.
package stats

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/meterstat/pkg/mercury"
)

// Outcome kinds reported by Classify
const (
	KindOK           = "ok"
	KindWrongLength  = "wrong_length"
	KindWrongCRC     = "wrong_crc"
	KindWrongAddress = "wrong_address"
	KindInitProblem  = "init_problem"
	KindTransport    = "transport"
	KindBusy         = "busy"
	KindError        = "error"
)

// Classify maps an exchange error to an outcome kind
func Classify(err error) string {
	var transportErr *mercury.TransportError
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, mercury.ErrWrongLength):
		return KindWrongLength
	case errors.Is(err, mercury.ErrWrongCRC):
		return KindWrongCRC
	case errors.Is(err, mercury.ErrWrongAddress):
		return KindWrongAddress
	case errors.Is(err, mercury.ErrInitProblem):
		return KindInitProblem
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.Is(err, mercury.ErrBusy):
		return KindBusy
	default:
		return KindError
	}
}

// Counters is a point-in-time copy of the statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	TotalExchanges uint64
	Successful     uint64
	CRCErrors      uint64
	LengthErrors   uint64
	AddressErrors  uint64
	TransportErrs  uint64
	OtherErrors    uint64
	Reinits        uint64
	InitProblems   uint64

	LastRTT  time.Duration
	TotalRTT time.Duration

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // errors/sec
}

// Errors returns the number of failed exchanges
func (c Counters) Errors() uint64 {
	return c.CRCErrors + c.LengthErrors + c.AddressErrors + c.TransportErrs + c.OtherErrors + c.InitProblems
}

// AverageRTT returns the mean round trip of successful exchanges
func (c Counters) AverageRTT() time.Duration {
	if c.Successful == 0 {
		return 0
	}
	return c.TotalRTT / time.Duration(c.Successful)
}

// Statistics tracks exchanges. It implements mercury.Observer and is safe
// for concurrent use.
type Statistics struct {
	mu  sync.Mutex
	c   Counters
	now func() time.Time
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return newStatistics(time.Now)
}

func newStatistics(now func() time.Time) *Statistics {
	t := now()
	return &Statistics{
		c:   Counters{StartTime: t, LastUpdateTime: t},
		now: now,
	}
}

// ObserveExchange implements mercury.Observer
func (s *Statistics) ObserveExchange(ev mercury.ExchangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.TotalExchanges++
	s.c.LastUpdateTime = s.now()

	if ev.InitRequired {
		// A sentinel on the retry means setup did not stick
		if ev.Retry {
			s.c.InitProblems++
		} else {
			s.c.Reinits++
		}
		return
	}

	switch Classify(ev.Err) {
	case KindOK:
		s.c.Successful++
		s.c.LastRTT = ev.Duration
		s.c.TotalRTT += ev.Duration
	case KindWrongCRC:
		s.c.CRCErrors++
	case KindWrongLength:
		s.c.LengthErrors++
	case KindWrongAddress:
		s.c.AddressErrors++
	case KindTransport:
		s.c.TransportErrs++
	default:
		s.c.OtherErrors++
	}
}

// Snapshot returns the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	elapsed := s.now().Sub(c.StartTime).Seconds()
	if elapsed > 0 {
		c.ExchangeRate = float64(c.TotalExchanges) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
	}
	return c
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	s.c = Counters{StartTime: t, LastUpdateTime: t}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	percent := func(n uint64) float64 {
		if c.TotalExchanges == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(c.TotalExchanges)
	}

	var b strings.Builder
	elapsed := s.now().Sub(c.StartTime)

	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Total Exchanges: %8d\n", c.TotalExchanges)
	fmt.Fprintf(&b, "Successful:      %8d (%.1f%%)\n", c.Successful, percent(c.Successful))

	if c.CRCErrors > 0 {
		fmt.Fprintf(&b, "CRC Errors:      %8d (%.1f%%)\n", c.CRCErrors, percent(c.CRCErrors))
	}
	if c.LengthErrors > 0 {
		fmt.Fprintf(&b, "Length Errors:   %8d (%.1f%%)\n", c.LengthErrors, percent(c.LengthErrors))
	}
	if c.AddressErrors > 0 {
		fmt.Fprintf(&b, "Address Errors:  %8d (%.1f%%)\n", c.AddressErrors, percent(c.AddressErrors))
	}
	if c.TransportErrs > 0 {
		fmt.Fprintf(&b, "Transport Errors:%8d (%.1f%%)\n", c.TransportErrs, percent(c.TransportErrs))
	}
	if c.OtherErrors > 0 {
		fmt.Fprintf(&b, "Other Errors:    %8d (%.1f%%)\n", c.OtherErrors, percent(c.OtherErrors))
	}
	if c.Reinits > 0 || c.InitProblems > 0 {
		fmt.Fprintf(&b, "Channel Reinits: %8d\n", c.Reinits)
		if c.InitProblems > 0 {
			fmt.Fprintf(&b, "  Init Problems:    %5d\n", c.InitProblems)
		}
	}

	fmt.Fprintf(&b, "Average RTT:     %8s\n", c.AverageRTT().Round(time.Millisecond))
	fmt.Fprintf(&b, "Exchange Rate:   %8.1f exch/sec\n", c.ExchangeRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	b.WriteString("================================\n")

	return b.String()
}
