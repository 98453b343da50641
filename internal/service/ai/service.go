package ai

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/irislabs/voice-gateway/internal/memory"
	"github.com/irislabs/voice-gateway/internal/tools"
	"github.com/irislabs/voice-gateway/internal/voice"
)

const (
	defaultFirstTokenTimeout = 15 * time.Second
	defaultTurnTimeout       = 60 * time.Second
	maxToolRounds            = 4
	historyLimit             = 10
)

// Service runs the main reply path: prompt assembly, streaming generation
// and the tool loop.
type Service struct {
	chatModel model.ChatModel
	registry  *tools.Registry
	engine    *memory.Engine

	firstTokenTimeout time.Duration
	turnTimeout       time.Duration
}

// NewService binds the tool set to the model and returns the service.
func NewService(chatModel model.ChatModel, registry *tools.Registry, engine *memory.Engine) (*Service, error) {
	if err := chatModel.BindTools(registry.Infos()); err != nil {
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}
	return &Service{
		chatModel:         chatModel,
		registry:          registry,
		engine:            engine,
		firstTokenTimeout: defaultFirstTokenTimeout,
		turnTimeout:       defaultTurnTimeout,
	}, nil
}

// Respond streams the reply to one transcript. Text deltas go to onDelta
// in arrival order; the return value is the complete reply text. ack is
// the filler line already spoken, passed through to the prompt so the
// model continues past it.
func (s *Service) Respond(ctx context.Context, userID, transcript string, style voice.Style, ack string, onDelta func(string)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	turnCtx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	messages := BuildMessages(s.promptInput(userID, transcript, style, ack))

	var reply strings.Builder
	for round := 0; round < maxToolRounds; round++ {
		full, err := s.streamOnce(turnCtx, messages, &reply, onDelta)
		if err != nil {
			if turnCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return reply.String(), voice.ErrTurnTimeout
			}
			return reply.String(), err
		}

		if len(full.ToolCalls) == 0 {
			return strings.TrimSpace(reply.String()), nil
		}

		messages = append(messages, full)
		for _, call := range full.ToolCalls {
			result, err := s.registry.Call(turnCtx, userID, call.Function.Name, call.Function.Arguments)
			if err != nil {
				result = fmt.Sprintf("error: %v", err)
			}
			log.Printf("[ai] tool %s -> %d bytes", call.Function.Name, len(result))
			messages = append(messages, schema.ToolMessage(result, call.ID))
		}
	}

	return reply.String(), fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds)
}

type recvResult struct {
	msg *schema.Message
	err error
}

// streamOnce runs a single model pass, forwarding content deltas and
// returning the concatenated message so the caller can inspect tool calls.
func (s *Service) streamOnce(ctx context.Context, messages []*schema.Message, reply *strings.Builder, onDelta func(string)) (*schema.Message, error) {
	stream, err := s.chatModel.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("model stream failed: %w", err)
	}
	defer stream.Close()

	results := make(chan recvResult)
	go func() {
		for {
			msg, err := stream.Recv()
			select {
			case results <- recvResult{msg, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	firstToken := time.NewTimer(s.firstTokenTimeout)
	defer firstToken.Stop()

	var chunks []*schema.Message
	for {
		var res recvResult
		if len(chunks) == 0 {
			select {
			case res = <-results:
			case <-firstToken.C:
				return nil, voice.ErrFirstTokenTimeout
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			select {
			case res = <-results:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if res.err == io.EOF {
			break
		}
		if res.err != nil {
			return nil, fmt.Errorf("model stream broke: %w", res.err)
		}

		chunks = append(chunks, res.msg)
		if res.msg.Content != "" {
			reply.WriteString(res.msg.Content)
			if onDelta != nil {
				onDelta(res.msg.Content)
			}
		}
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("model stream produced nothing")
	}
	return schema.ConcatMessages(chunks)
}

func (s *Service) promptInput(userID, transcript string, style voice.Style, ack string) PromptInput {
	in := PromptInput{
		Transcript:     transcript,
		Style:          style,
		Acknowledgment: ack,
	}

	if view, err := s.engine.GetSummary(userID); err == nil && view != nil && !view.Stale {
		in.Summary = view.Text
	}
	if entities, err := s.engine.RecentEntities(userID, maxContextEntities); err == nil {
		in.Entities = entities
	}
	if history, err := s.engine.RecentTurns(userID, historyLimit); err == nil {
		in.History = history
	}
	return in
}
