// Package jsonlines reassembles speaker/content records from a chunked
// model response that uses one or more JSON objects per line.
package jsonlines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// State is the parser lifecycle position.
type State int

const (
	Streaming State = iota
	Flushing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Streaming:
		return "streaming"
	case Flushing:
		return "flushing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Message is one line of dialogue.
type Message struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// Result summarizes a parse run.
type Result struct {
	MessageCount  int    `json:"messageCount"`
	ParseFailures int    `json:"parseFailures"`
	Summary       string `json:"summary,omitempty"`
	HasSummary    bool   `json:"hasSummary"`
	Aborted       bool   `json:"aborted"`
}

// SuccessRate is messages over messages plus failures, in percent. It is
// diagnostic only.
func (r Result) SuccessRate() float64 {
	if r.MessageCount == 0 {
		return 0
	}
	return float64(r.MessageCount) / float64(r.MessageCount+r.ParseFailures) * 100
}

// EmitFunc receives each message synchronously, in arrival order.
type EmitFunc func(Message)

// ErrClosed is returned when writing to a parser that has finished.
var ErrClosed = errors.New("jsonlines: parser closed")

const loggedFailures = 3

var (
	fenceJSON  = regexp.MustCompile("(?i)^```json\\s*")
	fenceOpen  = regexp.MustCompile("^```\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// Parser is a single-use line parser. It is not safe for concurrent use;
// a stream has exactly one producer.
type Parser struct {
	ctx    context.Context
	emit   EmitFunc
	buf    string
	state  State
	result Result
}

// NewParser returns a parser that emits through emit until ctx is done.
func NewParser(ctx context.Context, emit EmitFunc) *Parser {
	if ctx == nil {
		ctx = context.Background()
	}
	if emit == nil {
		emit = func(Message) {}
	}
	return &Parser{ctx: ctx, emit: emit}
}

func (p *Parser) State() State {
	return p.state
}

// Write appends a chunk and processes every complete line it closes. The
// trailing partial line stays buffered.
func (p *Parser) Write(chunk string) error {
	if p.state != Streaming {
		return ErrClosed
	}
	if err := p.ctx.Err(); err != nil {
		p.abort()
		return err
	}

	p.buf += chunk
	lines := strings.Split(p.buf, "\n")
	p.buf = lines[len(lines)-1]

	for _, line := range lines[:len(lines)-1] {
		p.processLine(line)
		if p.state == Aborted {
			return p.ctx.Err()
		}
	}
	return nil
}

// Flush processes any residual buffer and finalizes the result.
func (p *Parser) Flush() Result {
	if p.state != Streaming {
		return p.result
	}

	p.state = Flushing
	if strings.TrimSpace(p.buf) != "" {
		p.processLine(p.buf)
	}
	p.buf = ""
	if p.state == Flushing {
		p.state = Done
	}

	log.Debug().
		Int("messages", p.result.MessageCount).
		Int("failures", p.result.ParseFailures).
		Float64("success_rate", p.result.SuccessRate()).
		Msg("json lines stream complete")
	return p.result
}

// Abort discards the buffer. Messages already emitted stay counted.
func (p *Parser) Abort() Result {
	if p.state == Streaming || p.state == Flushing {
		p.abort()
	}
	return p.result
}

func (p *Parser) abort() {
	p.state = Aborted
	p.buf = ""
	p.result.Aborted = true
}

func (p *Parser) processLine(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	trimmed = fenceJSON.ReplaceAllString(trimmed, "")
	trimmed = fenceOpen.ReplaceAllString(trimmed, "")
	trimmed = fenceClose.ReplaceAllString(trimmed, "")
	if trimmed == "" {
		return
	}

	failuresBefore := p.result.ParseFailures
	found := false
	for pos := 0; pos < len(trimmed); {
		start, end := nextObject(trimmed, pos)
		if start < 0 {
			break
		}
		if end < 0 {
			// Unbalanced fragment: resync at the next brace inside it.
			pos = start + 1
			continue
		}
		if p.ctx.Err() != nil {
			p.abort()
			return
		}
		if p.classify(trimmed[start:end]) {
			found = true
			pos = end
		} else {
			pos = start + 1
		}
	}

	if !found && p.result.ParseFailures == failuresBefore {
		p.fail("no JSON found in line", trimmed)
	}
}

type record struct {
	Summary string `json:"summary"`
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// classify handles one candidate object and reports whether it was valid JSON.
func (p *Parser) classify(raw string) bool {
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		p.fail("parse failed", raw)
		return false
	}

	switch {
	case rec.Summary != "":
		p.result.Summary = rec.Summary
		p.result.HasSummary = true
	case rec.Speaker != "" && rec.Content != "":
		p.result.MessageCount++
		p.emit(Message{Speaker: rec.Speaker, Content: rec.Content})
	}
	return true
}

func (p *Parser) fail(msg, fragment string) {
	p.result.ParseFailures++
	if p.result.ParseFailures <= loggedFailures {
		log.Debug().
			Int("failures", p.result.ParseFailures).
			Str("fragment", preview(fragment, 50)).
			Msg(msg)
	}
}

// nextObject finds the first '{' at or after from and the end (exclusive) of
// the balanced object it opens. Braces inside JSON strings are ignored and
// nesting depth is unbounded. start is -1 when no brace remains; end is -1
// when the object is still open at the end of line.
func nextObject(line string, from int) (start, end int) {
	start = strings.IndexByte(line[from:], '{')
	if start < 0 {
		return -1, -1
	}
	start += from

	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return start, -1
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// Source yields text chunks until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// Consume drives a parser from src until the source is exhausted or ctx is
// done. Cancellation is not an error: the partial result is returned with
// Aborted set. Other source errors are returned alongside the partial result.
func Consume(ctx context.Context, src Source, emit EmitFunc) (Result, error) {
	p := NewParser(ctx, emit)

	for {
		if ctx.Err() != nil {
			return p.Abort(), nil
		}

		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return p.Flush(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return p.Abort(), nil
			}
			return p.Abort(), fmt.Errorf("reading stream: %w", err)
		}

		if err := p.Write(chunk); err != nil {
			return p.Abort(), nil
		}
	}
}
