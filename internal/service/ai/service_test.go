package ai

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/irislabs/voice-gateway/internal/memory"
	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
	"github.com/irislabs/voice-gateway/internal/tools"
	"github.com/irislabs/voice-gateway/internal/voice"
)

// fakeChatModel plays back scripted stream chunks, one script per Stream
// call, and records what it was asked.
type fakeChatModel struct {
	scripts  [][]*schema.Message
	requests [][]*schema.Message
	bound    []*schema.ToolInfo

	generateResp *schema.Message
	generateErr  error
	blockStream  bool
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	if f.generateResp != nil {
		return f.generateResp, nil
	}
	return schema.AssistantMessage("ok", nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.requests = append(f.requests, in)
	if f.blockStream {
		reader, _ := schema.Pipe[*schema.Message](1)
		return reader, nil
	}
	if len(f.scripts) == 0 {
		return nil, errors.New("no script left")
	}
	script := f.scripts[0]
	f.scripts = f.scripts[1:]
	return schema.StreamReaderFromArray(script), nil
}

func (f *fakeChatModel) BindTools(infos []*schema.ToolInfo) error {
	f.bound = infos
	return nil
}

func newTestService(t *testing.T, fake *fakeChatModel) (*Service, *memory.Engine) {
	t.Helper()
	engine, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"), memory.Options{})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	service, err := NewService(fake, tools.NewRegistry(engine), engine)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return service, engine
}

func textChunks(parts ...string) []*schema.Message {
	out := make([]*schema.Message, 0, len(parts))
	for _, p := range parts {
		out = append(out, schema.AssistantMessage(p, nil))
	}
	return out
}

func TestRespondStreamsDeltas(t *testing.T) {
	fake := &fakeChatModel{scripts: [][]*schema.Message{
		textChunks("Your fleet ", "has four ships."),
	}}
	service, _ := newTestService(t, fake)

	var deltas []string
	reply, err := service.Respond(context.Background(), "alice", "check my fleet",
		voice.StyleByName("normal"), "", func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if reply != "Your fleet has four ships." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(deltas) != 2 || deltas[0] != "Your fleet " {
		t.Fatalf("unexpected deltas: %v", deltas)
	}
	if len(fake.bound) == 0 {
		t.Fatalf("tools were not bound")
	}
}

func TestRespondRunsToolLoop(t *testing.T) {
	toolCall := &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       "call-1",
			Function: schema.FunctionCall{Name: "search_memory", Arguments: `{"query":"armada"}`},
		}},
	}
	fake := &fakeChatModel{scripts: [][]*schema.Message{
		{toolCall},
		textChunks("The Armada has four ships."),
	}}
	service, engine := newTestService(t, fake)

	if _, err := engine.CreateEntities("alice", []memory.EntityInput{{
		Name: "The Armada", EntityType: "fleet", Observations: []string{"has 4 ships"},
	}}, false); err != nil {
		t.Fatalf("seed err: %v", err)
	}

	reply, err := service.Respond(context.Background(), "alice", "how big is my fleet?",
		voice.StyleByName("normal"), "", nil)
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if reply != "The Armada has four ships." {
		t.Fatalf("unexpected reply: %q", reply)
	}

	if len(fake.requests) != 2 {
		t.Fatalf("expected 2 model passes, got %d", len(fake.requests))
	}
	second := fake.requests[1]
	last := second[len(second)-1]
	if last.Role != schema.Tool || !strings.Contains(last.Content, "The Armada") {
		t.Fatalf("tool result missing from second pass: %+v", last)
	}
}

func TestRespondFirstTokenTimeout(t *testing.T) {
	fake := &fakeChatModel{blockStream: true}
	service, _ := newTestService(t, fake)
	service.firstTokenTimeout = 20 * time.Millisecond

	_, err := service.Respond(context.Background(), "alice", "check my fleet",
		voice.StyleByName("normal"), "", nil)
	if !errors.Is(err, voice.ErrFirstTokenTimeout) {
		t.Fatalf("expected ErrFirstTokenTimeout, got %v", err)
	}
}

func TestRespondCancelledMidStream(t *testing.T) {
	fake := &fakeChatModel{scripts: [][]*schema.Message{
		textChunks("part one ", "part two"),
	}}
	service, _ := newTestService(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Respond(ctx, "alice", "check my fleet",
		voice.StyleByName("normal"), "", nil)
	if err == nil {
		t.Fatalf("expected an error on cancelled context")
	}
}

func TestAcknowledgerPatternTable(t *testing.T) {
	ack := NewAcknowledger(nil)
	normal := voice.StyleByName("normal")

	cases := []struct {
		transcript string
		want       string
		wantIntent string
		wantOK     bool
	}{
		{"check my fleet", "Checking your fleet.", "fleet_status", true},
		{"what's my wallet balance", "Checking your balance.", "wallet_balance", true},
		{"how are prices at the market", "Looking at the market.", "market_info", true},
		{"where did I leave my cargo", "Let me check.", "question", true},
		{"sell the spare parts", "On it.", "command", true},
		{"hello", "", "", false},
		{"ok!", "", "", false},
		{"hm", "", "", false},
	}
	for _, tc := range cases {
		got, ok := ack.Acknowledge(context.Background(), tc.transcript, normal)
		if ok != tc.wantOK || got.Text != tc.want || got.Intent != tc.wantIntent {
			t.Fatalf("Acknowledge(%q) = %+v, %v; want %q/%q, %v",
				tc.transcript, got, ok, tc.want, tc.wantIntent, tc.wantOK)
		}
		if ok && !got.NeedsFollowUp {
			t.Fatalf("Acknowledge(%q) must flag a follow-up", tc.transcript)
		}
	}
}

func TestAcknowledgerStyleGates(t *testing.T) {
	ack := NewAcknowledger(nil)

	if _, ok := ack.Acknowledge(context.Background(), "check my fleet", voice.StyleByName("concise")); ok {
		t.Fatalf("concise style must skip acknowledgments")
	}

	got, ok := ack.Acknowledge(context.Background(), "recalibrate the sensor array", voice.StyleByName("formal"))
	if !ok || got.Text != FallbackAck {
		t.Fatalf("brief style should fall back without a model call, got %+v, %v", got, ok)
	}
}

func TestAcknowledgerModelJSON(t *testing.T) {
	fake := &fakeChatModel{generateResp: schema.AssistantMessage(
		`{"text": "Recalibrating now.", "intent": "recalibrate_sensors", "needsFollowUp": true}`, nil)}
	ack := NewAcknowledger(fake)

	got, ok := ack.Acknowledge(context.Background(), "recalibrate the sensor array", voice.StyleByName("normal"))
	if !ok || got.Text != "Recalibrating now." || got.Intent != "recalibrate_sensors" || !got.NeedsFollowUp {
		t.Fatalf("expected parsed model acknowledgment, got %+v, %v", got, ok)
	}
}

func TestAcknowledgerModelFallback(t *testing.T) {
	fake := &fakeChatModel{generateErr: errors.New("deadline exceeded")}
	ack := NewAcknowledger(fake)

	got, ok := ack.Acknowledge(context.Background(), "recalibrate the sensor array", voice.StyleByName("normal"))
	if !ok || got.Text != FallbackAck {
		t.Fatalf("model failure must fall back, got %+v, %v", got, ok)
	}

	// A reply that is not the requested JSON shape falls back too.
	fake = &fakeChatModel{generateResp: schema.AssistantMessage("Recalibrating now.", nil)}
	got, ok = NewAcknowledger(fake).Acknowledge(context.Background(), "recalibrate the sensor array", voice.StyleByName("normal"))
	if !ok || got.Text != FallbackAck {
		t.Fatalf("unparseable model reply must fall back, got %+v, %v", got, ok)
	}
}

func TestBuildMessagesShape(t *testing.T) {
	in := PromptInput{
		Transcript:     "how big is my fleet?",
		Style:          voice.StyleByName("formal"),
		Acknowledgment: "Checking your fleet.",
		Summary:        "Alice commands The Armada.",
		History:        nil,
	}
	messages := BuildMessages(in)

	if len(messages) != 2 {
		t.Fatalf("expected system + user, got %d", len(messages))
	}
	sys := messages[0].Content
	for _, want := range []string{"formal", "Alice commands The Armada.", "Checking your fleet."} {
		if !strings.Contains(sys, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, sys)
		}
	}
	if messages[1].Content != "how big is my fleet?" {
		t.Fatalf("transcript must be the final message, got %q", messages[1].Content)
	}
}

func TestBuildMessagesSkipsPersistedTranscript(t *testing.T) {
	// The user turn lands in the conversation ring before the request is
	// assembled; the model must still see the transcript only once.
	in := PromptInput{
		Transcript: "how big is my fleet?",
		Style:      voice.StyleByName("normal"),
		History: []memmodel.Turn{
			{Role: memmodel.RoleUser, Content: "hello there"},
			{Role: memmodel.RoleAssistant, Content: "Hello."},
			{Role: memmodel.RoleUser, Content: "how big is my fleet?"},
		},
	}
	messages := BuildMessages(in)

	var count int
	for _, m := range messages {
		if m.Role == schema.User && m.Content == in.Transcript {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("transcript appears %d times in the request, want 1", count)
	}
	if messages[len(messages)-1].Content != in.Transcript {
		t.Fatalf("transcript must be the final message")
	}
}
