package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	url       string
	language  string
	timeout   time.Duration
	reference string
}

type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// reply covers every server message shape.
type reply struct {
	Type           string    `json:"type"`
	Text           string    `json:"text"`
	IsFinal        bool      `json:"is_final"`
	Language       string    `json:"language"`
	Duration       float64   `json:"duration"`
	ProcessingTime float64   `json:"processing_time"`
	RealTimeFactor float64   `json:"real_time_factor"`
	Segments       []segment `json:"segments"`
	Message        string    `json:"message"`
}

func (c client) dial() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func (c client) lang() *string {
	if c.language == "" {
		return nil
	}
	return &c.language
}

func (c client) transcribeFile(conn *websocket.Conn, cl clip) (*reply, error) {
	msg := map[string]any{
		"type":     "file",
		"audio":    base64.StdEncoding.EncodeToString(cl.data),
		"format":   cl.format,
		"language": c.lang(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("send file: %w", err)
	}
	r, err := c.read(conn)
	if err != nil {
		return nil, err
	}
	if r.Type == "error" {
		return nil, errors.New(r.Message)
	}
	if r.Type != "file_transcript" {
		return nil, fmt.Errorf("unexpected %s reply", r.Type)
	}
	return r, nil
}

func (c client) sendStream(conn *websocket.Conn, pcm []byte) error {
	return conn.WriteJSON(map[string]any{
		"type":     "stream",
		"audio":    base64.StdEncoding.EncodeToString(pcm),
		"language": c.lang(),
	})
}

func (c client) sendStop(conn *websocket.Conn) error {
	return conn.WriteJSON(map[string]string{"type": "stop"})
}

// printTranscripts prints stream replies until the final transcript. A stop
// with nothing buffered yields no reply, so a read timeout ends the wait.
func (c client) printTranscripts(conn *websocket.Conn) error {
	for {
		r, err := c.read(conn)
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return err
		}
		switch {
		case r.Type == "error":
			fmt.Printf("error: %s\n", r.Message)
		case r.IsFinal:
			fmt.Printf("[final] %s\n", r.Text)
			return nil
		default:
			fmt.Printf("[partial %.1fs] %s\n", r.Duration, r.Text)
		}
	}
}

func (c client) read(conn *websocket.Conn) (*reply, error) {
	conn.SetReadDeadline(time.Now().Add(c.timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	var r reply
	if err = json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if r.Type == "error" && r.Message == "" {
		r.Message = "unknown error"
	}
	return &r, nil
}
