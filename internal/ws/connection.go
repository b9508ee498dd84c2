package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/whisper-gateway/internal/audio"
	"github.com/hubenschmidt/whisper-gateway/internal/events"
	"github.com/hubenschmidt/whisper-gateway/internal/metrics"
	"github.com/hubenschmidt/whisper-gateway/internal/protocol"
	"github.com/hubenschmidt/whisper-gateway/internal/trace"
	"github.com/hubenschmidt/whisper-gateway/internal/transcribe"
)

type state int

const (
	stateIdle state = iota
	stateStreaming
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

// passthroughFormats are containers handed to the engine without decoding.
var passthroughFormats = map[audio.Format]bool{
	"mp3": true, "flac": true, "ogg": true, "webm": true,
	"m4a": true, "mp4": true, "opus": true,
}

// connection processes one client's messages strictly in arrival order.
type connection struct {
	id      string
	ws      *websocket.Conn
	h       *Handler
	params  connParams
	log     *slog.Logger
	tracer  *trace.Tracer
	state   state
	writeMu sync.Mutex
}

type frame struct {
	msgType int
	data    []byte
}

// serve handles frames in arrival order. Reading runs on its own goroutine so
// that a disconnect cancels ctx and aborts any pending engine call.
func (c *connection) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.close()

	frames := make(chan frame, 4)
	go c.read(ctx, cancel, frames)

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-frames:
			c.handle(ctx, f.msgType, f.data)
		}
	}
}

func (c *connection) read(ctx context.Context, cancel context.CancelFunc, frames chan<- frame) {
	defer cancel()
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", "error", err)
			}
			return
		}
		select {
		case frames <- frame{msgType: msgType, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// close discards any buffered audio without transcribing it.
func (c *connection) close() {
	if c.h.cfg.Sessions.Remove(c.id) {
		c.log.Debug("discarded unfinished stream")
	}
	c.state = stateClosed
}

func (c *connection) handle(ctx context.Context, msgType int, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic handling message", "panic", r, "state", c.state)
			c.sendError("internal", errors.New("internal error"))
		}
	}()

	if msgType == websocket.BinaryMessage {
		metrics.Messages.WithLabelValues("binary").Inc()
		c.stream(ctx, data, audio.FormatPCM, c.params.SampleRate, "")
		return
	}

	msg, err := protocol.Parse(data)
	if err != nil {
		metrics.Messages.WithLabelValues("invalid").Inc()
		c.sendError("protocol", err)
		return
	}
	metrics.Messages.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case protocol.TypeFile:
		c.file(ctx, msg)
	case protocol.TypeStream:
		raw, err := audio.DecodePayload(msg.Audio)
		if err != nil {
			c.sendError("decode", err)
			return
		}
		rate := msg.SampleRate
		if rate == 0 {
			rate = c.params.SampleRate
		}
		c.stream(ctx, raw, audio.ParseFormat(msg.Format), rate, msg.Lang())
	case protocol.TypeStop:
		c.stop(ctx)
	}
}

func (c *connection) language(hint string) string {
	if hint != "" {
		return hint
	}
	return c.params.Language
}

func (c *connection) file(ctx context.Context, msg *protocol.Inbound) {
	data, err := audio.DecodePayload(msg.Audio)
	if err != nil {
		c.sendError("decode", err)
		return
	}
	format := audio.FormatWAV
	if msg.Format != "" {
		format = audio.ParseFormat(msg.Format)
	}
	req := transcribe.Request{
		Engine:         c.params.Engine,
		Language:       c.language(msg.Lang()),
		WordTimestamps: true,
		Mode:           transcribe.ModeFile,
	}

	started := time.Now()
	var res *transcribe.Result
	switch {
	case audio.IsRaw(format):
		samples, decErr := audio.Normalize(data, format, c.params.SampleRate)
		if decErr != nil {
			c.sendError("decode", decErr)
			return
		}
		res, err = c.h.cfg.Dispatcher.TranscribeSamples(ctx, samples, audio.TargetRate, req)
	case format == audio.FormatWAV:
		if _, _, decErr := audio.DecodeWAV(data); decErr != nil {
			c.sendError("decode", decErr)
			return
		}
		res, err = c.h.cfg.Dispatcher.TranscribeFile(ctx, data, string(format), req)
	case passthroughFormats[format]:
		res, err = c.h.cfg.Dispatcher.TranscribeFile(ctx, data, string(format), req)
	default:
		c.sendError("decode", &audio.DecodeError{Format: format, Reason: "unsupported format"})
		return
	}

	c.record(transcribe.ModeFile, started, res, err)
	if err != nil {
		c.sendError("engine", err)
		return
	}
	c.send(protocol.NewFileTranscript(res))
	c.publish(ctx, events.KindFile, res)
}

func (c *connection) stream(ctx context.Context, raw []byte, format audio.Format, rate int, lang string) {
	if !audio.IsRaw(format) && format != audio.FormatWAV {
		c.sendError("decode", &audio.DecodeError{Format: format, Reason: "unsupported stream format"})
		return
	}
	samples, err := audio.Normalize(raw, format, rate)
	if err != nil {
		c.sendError("decode", err)
		return
	}

	sess, created := c.h.cfg.Sessions.GetOrCreate(c.id)
	if created {
		c.log.Debug("stream started")
	}
	c.state = stateStreaming
	sess.Append(samples, c.language(lang))
	metrics.AudioChunks.Inc()

	if !sess.ShouldFlush() {
		return
	}
	window := sess.Flush()
	started := time.Now()
	res, err := c.h.cfg.Dispatcher.TranscribeSamples(ctx, window, sess.SampleRate(), transcribe.Request{
		Engine:   c.params.Engine,
		Language: sess.Language(),
		Mode:     transcribe.ModeStream,
	})
	c.record(transcribe.ModeStream, started, res, err)
	if err != nil {
		c.sendError("engine", err)
		return
	}
	c.send(protocol.NewPartial(res))
	c.publish(ctx, events.KindPartial, res)
}

func (c *connection) stop(ctx context.Context) {
	sess, ok := c.h.cfg.Sessions.Get(c.id)
	if !ok {
		return
	}
	samples := sess.Finalize()
	lang := sess.Language()
	c.h.cfg.Sessions.Remove(c.id)
	c.state = stateIdle
	if len(samples) == 0 {
		return
	}

	started := time.Now()
	res, err := c.h.cfg.Dispatcher.TranscribeSamples(ctx, samples, sess.SampleRate(), transcribe.Request{
		Engine:   c.params.Engine,
		Language: lang,
		Mode:     transcribe.ModeFinal,
	})
	c.record(transcribe.ModeFinal, started, res, err)
	if err != nil {
		c.sendError("engine", err)
		return
	}
	c.send(protocol.NewFinal(res))
	c.publish(ctx, events.KindFinal, res)
}

func (c *connection) record(mode transcribe.Mode, started time.Time, res *transcribe.Result, err error) {
	if err != nil {
		name := c.params.Engine
		var ee *transcribe.EngineError
		if errors.As(err, &ee) {
			name = ee.Engine
		}
		c.tracer.RecordRun(string(mode), name, started, 0, 0, "", "", err.Error())
		return
	}
	c.tracer.RecordRun(string(mode), res.Engine, started, res.Duration, res.ProcessingTime*1000, res.Language, res.Text, "")
}

func (c *connection) publish(ctx context.Context, kind events.Kind, res *transcribe.Result) {
	c.h.cfg.Events.Publish(ctx, events.Event{
		SessionID:      c.id,
		Kind:           kind,
		Engine:         res.Engine,
		Text:           res.Text,
		Language:       res.Language,
		Duration:       res.Duration,
		ProcessingTime: res.ProcessingTime,
	})
}

func (c *connection) sendError(kind string, err error) {
	metrics.Errors.WithLabelValues(kind).Inc()
	c.log.Warn("request failed", "kind", kind, "state", c.state, "error", err)
	c.send(protocol.NewError(err))
}

// send serializes writes; gorilla connections allow one concurrent writer.
func (c *connection) send(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(v); err != nil {
		c.log.Debug("write failed", "error", err)
	}
}
