package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"golang.org/x/term"

	"mtu/rxstream"
)

const pinCount = 8

// plotWidth is the bar width for histograms: the terminal width minus room
// for the bucket labels, or a fixed width when out is not a terminal.
func plotWidth(out io.Writer) int {
	const fallback = 40
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return fallback
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w < fallback+30 {
		return fallback
	}
	return w - 30
}

// pinActivity lists the pin number of every high bit in every sample.
func pinActivity(frames []rxstream.Waveform) []float64 {
	var data []float64
	for _, wf := range frames {
		for _, sample := range wf {
			for pin := 0; pin < pinCount; pin++ {
				if sample&(1<<pin) != 0 {
					data = append(data, float64(pin))
				}
			}
		}
	}
	return data
}

// printPinHistogram shows how often each pin was seen high.
func printPinHistogram(w io.Writer, frames []rxstream.Waveform, width int) error {
	data := pinActivity(frames)
	if len(data) == 0 {
		_, err := fmt.Fprintln(w, "no pin was driven high")
		return err
	}

	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		_, err := fmt.Fprintf(w, "only pin %d was driven high (%d samples)\n", int(lo), len(data))
		return err
	}

	hist := histogram.Hist(int(hi-lo)+1, data)
	return histogram.Fprint(w, hist, histogram.Linear(width))
}

// printWaveform draws one frame, one row per pin, high samples as '-'.
func printWaveform(w io.Writer, wf rxstream.Waveform) {
	for pin := 0; pin < pinCount; pin++ {
		var sb strings.Builder
		for _, sample := range wf {
			if sample&(1<<pin) != 0 {
				sb.WriteByte('-')
			} else {
				sb.WriteByte('_')
			}
		}
		fmt.Fprintf(w, "D%d %s\n", pin, sb.String())
	}
}
