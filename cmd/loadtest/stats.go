package main

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type benchResult struct {
	success    bool
	roundTrip  float64 // seconds
	processing float64 // seconds, as reported by the server
	rtf        float64
	wer        float64
	err        string
}

type summary struct {
	avg, min, max, median, p50, p95, p99 float64
}

func summarize(data []float64) summary {
	if len(data) == 0 {
		return summary{}
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return summary{
		avg:    sum / float64(len(sorted)),
		min:    sorted[0],
		max:    sorted[len(sorted)-1],
		median: median(sorted),
		p50:    percentile(sorted, 50),
		p95:    percentile(sorted, 95),
		p99:    percentile(sorted, 99),
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentile uses nearest-rank on sorted data.
func percentile(sorted []float64, pct float64) float64 {
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printSummary(results []benchResult, audioSeconds float64, wall time.Duration) {
	var succeeded, failed int
	var roundTrips, processing, rtfs, wers []float64
	errs := map[string]int{}

	for _, r := range results {
		if !r.success {
			failed++
			errs[r.err]++
			continue
		}
		succeeded++
		roundTrips = append(roundTrips, r.roundTrip)
		processing = append(processing, r.processing)
		rtfs = append(rtfs, r.rtf)
		wers = append(wers, r.wer*100)
	}

	fmt.Printf("\n=== Benchmark Results ===\n")
	fmt.Printf("Runs completed: %d\n", succeeded)
	fmt.Printf("Runs failed:    %d\n", failed)
	for msg, n := range errs {
		fmt.Printf("  %dx %s\n", n, msg)
	}
	if succeeded == 0 {
		fmt.Println("No successful runs to report metrics")
		return
	}

	fmt.Printf("Wall time: %s | Throughput: %.2f audio-seconds/s\n",
		wall.Round(time.Millisecond), float64(succeeded)*audioSeconds/wall.Seconds())
	fmt.Printf("\n%-12s %8s %8s %8s %8s %8s %8s %8s\n", "Metric", "avg", "min", "max", "median", "p50", "p95", "p99")
	printRow("round trip", summarize(roundTrips), "s")
	printRow("processing", summarize(processing), "s")
	printRow("RTF", summarize(rtfs), "x")
	if s := summarize(wers); s.max > 0 {
		printRow("WER", s, "%")
	}
}

func printRow(name string, s summary, unit string) {
	fmt.Printf("%-12s %7.2f%s %7.2f%s %7.2f%s %7.2f%s %7.2f%s %7.2f%s %7.2f%s\n", name,
		s.avg, unit, s.min, unit, s.max, unit, s.median, unit, s.p50, unit, s.p95, unit, s.p99, unit)
}
