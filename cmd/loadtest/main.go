package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hubenschmidt/whisper-gateway/internal/audio"
)

func main() {
	gateway := flag.String("gateway", "ws://localhost:8000/ws", "gateway WebSocket URL")
	mode := flag.String("mode", "file", "file | stream | bench")
	input := flag.String("input", "", "audio file (WAV or raw 16 kHz PCM); synthetic tone when empty")
	format := flag.String("format", "", "file format sent with file messages (default from extension)")
	language := flag.String("language", "", "language hint")
	chunk := flag.Duration("chunk", time.Second, "stream chunk length")
	realtime := flag.Bool("realtime", true, "pace stream chunks at their playback duration")
	runs := flag.Int("runs", 10, "bench: number of file transcriptions")
	concurrency := flag.Int("concurrency", 1, "bench: concurrent connections")
	timeout := flag.Duration("timeout", 120*time.Second, "per-response read timeout")
	reference := flag.String("reference", "", "expected transcript (text or @file) for word error rate")
	flag.Parse()

	ref, err := readReference(*reference)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reference: %v\n", err)
		os.Exit(1)
	}

	clip, err := loadClip(*input, *format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load audio: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Gateway: %s | Mode: %s | Audio: %.2fs (%s)\n\n", *gateway, *mode, clip.seconds, clip.format)

	c := client{url: *gateway, language: *language, timeout: *timeout, reference: ref}
	switch *mode {
	case "file":
		err = runFile(c, clip)
	case "stream":
		err = runStream(c, clip, *chunk, *realtime)
	case "bench":
		err = runBench(c, clip, *runs, *concurrency)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *mode, err)
		os.Exit(1)
	}
}

// clip is the audio under test in both container and raw PCM form.
type clip struct {
	data    []byte // bytes sent with file messages
	format  string
	pcm     []byte // 16 kHz PCM16 for stream messages
	seconds float64
}

func loadClip(path, format string) (clip, error) {
	if path == "" {
		samples := syntheticTone(5 * time.Second)
		return clip{
			data:    audio.SamplesToWAV(samples, audio.TargetRate),
			format:  "wav",
			pcm:     audio.EncodePCM16(samples),
			seconds: float64(len(samples)) / audio.TargetRate,
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return clip{}, err
	}
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	c := clip{data: data, format: format}
	switch format {
	case "wav":
		samples, rate, decErr := audio.DecodeWAV(data)
		if decErr != nil {
			return clip{}, decErr
		}
		if samples, decErr = audio.Resample(samples, rate, audio.TargetRate); decErr != nil {
			return clip{}, decErr
		}
		c.pcm = audio.EncodePCM16(samples)
		c.seconds = float64(len(samples)) / audio.TargetRate
	case "pcm", "raw":
		c.format = "pcm"
		c.pcm = data
		c.seconds = float64(len(data)/2) / audio.TargetRate
	}
	return c, nil
}

func syntheticTone(dur time.Duration) []float32 {
	n := int(dur.Seconds() * audio.TargetRate)
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / audio.TargetRate
		out[i] = float32(math.Sin(2*math.Pi*440*t)*0.3 + (rand.Float64()-0.5)*0.05)
	}
	return out
}

func runFile(c client, cl clip) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	start := time.Now()
	res, err := c.transcribeFile(conn, cl)
	if err != nil {
		return err
	}
	fmt.Printf("Transcript (%s, %.2fs audio, %.2fs processing, RTF %.1fx, round trip %s):\n%s\n\n",
		res.Language, res.Duration, res.ProcessingTime, res.RealTimeFactor, time.Since(start).Round(time.Millisecond), res.Text)
	for _, s := range res.Segments {
		fmt.Printf("[%s → %s] %s\n", clock(s.Start), clock(s.End), s.Text)
	}
	if c.reference != "" {
		fmt.Printf("\nWER: %.1f%%\n", wordErrorRate(c.reference, res.Text)*100)
	}
	return nil
}

func readReference(v string) (string, error) {
	path, ok := strings.CutPrefix(v, "@")
	if !ok {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runStream(c client, cl clip, chunk time.Duration, realtime bool) error {
	if len(cl.pcm) == 0 {
		return fmt.Errorf("stream mode needs WAV or PCM input, got %s", cl.format)
	}
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	received := make(chan error, 1)
	go func() {
		received <- c.printTranscripts(conn)
	}()

	chunkBytes := max(int(chunk.Seconds()*audio.TargetRate)*2, 2)
	for i := 0; i < len(cl.pcm); i += chunkBytes {
		end := min(i+chunkBytes, len(cl.pcm))
		if err = c.sendStream(conn, cl.pcm[i:end]); err != nil {
			return err
		}
		if realtime {
			time.Sleep(chunk)
		}
	}
	if err = c.sendStop(conn); err != nil {
		return err
	}
	return <-received
}

func runBench(c client, cl clip, runs, concurrency int) error {
	jobs := make(chan int)
	var mu sync.Mutex
	var results []benchResult
	var wg sync.WaitGroup

	wallStart := time.Now()
	for range max(concurrency, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := c.dial()
			if err != nil {
				for range jobs {
					mu.Lock()
					results = append(results, benchResult{err: err.Error()})
					mu.Unlock()
				}
				return
			}
			defer conn.Close()
			for range jobs {
				start := time.Now()
				res, err := c.transcribeFile(conn, cl)
				r := benchResult{roundTrip: time.Since(start).Seconds()}
				if err != nil {
					r.err = err.Error()
				} else {
					r.success = true
					r.processing = res.ProcessingTime
					r.rtf = res.RealTimeFactor
					r.wer = wordErrorRate(c.reference, res.Text)
				}
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}
	for i := range runs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	printSummary(results, cl.seconds, time.Since(wallStart))
	return nil
}

func clock(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
