package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// fakeLLM is a test double for llms.Model. It replays replies in order and
// records the prompts it was sent.
type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if len(messages) > 1 {
		if text, ok := messages[1].Parts[0].(llms.TextContent); ok {
			f.prompts = append(f.prompts, text.Text)
		}
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := "{}"
	if len(f.replies) > 0 {
		reply = f.replies[min(i, len(f.replies)-1)]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func newTestLLMProvider(llm llms.Model) *llmProvider {
	return newLLMProvider(llm, AppConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
}

func testView() StateView {
	var players []PlayerView
	for i, name := range testNames {
		players = append(players, PlayerView{ID: i + 1, Name: name, Alive: true})
	}
	return StateView{Round: 1, Phase: PhaseSeerTurn, Players: players, Alive: players}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"type": "vote", "target_id": 3}`, `{"type": "vote", "target_id": 3}`},
		{"fenced", "Here you go:\n```json\n{\"seer_check\": {\"target_id\": 2}}\n```", `{"seer_check": {"target_id": 2}}`},
		{"after thinking", `<think>maybe {"target_id": 1}?</think>{"target_id": 5}`, `{"target_id": 5}`},
		{"last object wins", `{"a": 1} then {"b": 2}`, `{"b": 2}`},
		{"nested", `I choose {"witch_poison": {"target_id": null}, "witch_save": true} ok`, `{"witch_poison": {"target_id": null}, "witch_save": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("extractJSON = %q, %v; want %q", got, err, tt.want)
			}
		})
	}

	if _, err := extractJSON("I refuse to answer."); !errors.Is(err, ErrProviderFailure) {
		t.Errorf("no JSON: %v, want ErrProviderFailure", err)
	}
}

func TestResolveTarget(t *testing.T) {
	view := testView()
	tests := []struct {
		raw  string
		want int // 0 = nil
	}{
		{`7`, 7},
		{`"3"`, 3},
		{`"carol "`, 3},
		{`0`, 0},
		{`null`, 0},
		{`"nobody"`, 0},
		{``, 0},
	}
	for _, tt := range tests {
		got := resolveTarget(json.RawMessage(tt.raw), view)
		switch {
		case tt.want == 0 && got != nil:
			t.Errorf("resolveTarget(%s) = %d, want nil", tt.raw, *got)
		case tt.want != 0 && (got == nil || *got != tt.want):
			t.Errorf("resolveTarget(%s) = %v, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestLLMProposeNightAction(t *testing.T) {
	tests := []struct {
		name  string
		role  RoleKind
		reply string
		check func(NightAction) bool
	}{
		{"werewolf kill", RoleWerewolf, `{"werewolf_kill": {"target_id": 7}}`,
			func(a NightAction) bool { return a.Kill != nil && *a.Kill == 7 }},
		{"seer by name", RoleSeer, "<think>Bob is shifty</think>\n```json\n{\"seer_check\": {\"target_id\": \"Bob\"}}\n```",
			func(a NightAction) bool { return a.Check != nil && *a.Check == 2 }},
		{"witch save", RoleWitch, `{"witch_save": true, "witch_poison": {"target_id": null}}`,
			func(a NightAction) bool { return a.Potion != nil && a.Potion.Save && a.Potion.PoisonTarget == nil }},
		{"witch idle", RoleWitch, `{"witch_save": false, "witch_poison": {"target_id": null}}`,
			func(a NightAction) bool { return a.Potion == nil }},
		{"hunter", RoleHunter, `{"hunter_shot": {"target_id": "1"}}`,
			func(a NightAction) bool { return a.Shot != nil && *a.Shot == 1 }},
		{"wrong field ignored", RoleSeer, `{"werewolf_kill": {"target_id": 7}}`,
			func(a NightAction) bool { return a.IsEmpty() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestLLMProvider(&fakeLLM{replies: []string{tt.reply}})
			self := PlayerView{ID: 5, Name: "Eve", Role: tt.role, Alive: true}
			action, err := p.ProposeNightAction(context.Background(), self, testView())
			if err != nil {
				t.Fatal(err)
			}
			if !tt.check(action) {
				t.Errorf("unexpected action %+v", action)
			}
		})
	}
}

func TestLLMVoteAndSpeech(t *testing.T) {
	fake := &fakeLLM{replies: []string{
		`{"type": "vote", "target_id": "Dave"}`,
		`{"type": "discussion", "message": "  I trust Alice.  "}`,
		`Honestly I have no idea.`,
		`{"type": "vote", "target_id": 0}`,
	}}
	p := newTestLLMProvider(fake)
	self := PlayerView{ID: 1, Name: "Alice", Role: RoleVillager, Alive: true}
	view := testView()

	if id, err := p.ProposeVote(context.Background(), self, view); err != nil || id != 4 {
		t.Errorf("vote = %d, %v; want 4", id, err)
	}
	if msg, err := p.ProposeDiscussion(context.Background(), self, view); err != nil || msg != "I trust Alice." {
		t.Errorf("speech = %q, %v", msg, err)
	}
	if msg, err := p.ProposeLastWords(context.Background(), self, view); err != nil || msg != "Honestly I have no idea." {
		t.Errorf("plain text last words = %q, %v", msg, err)
	}
	if id, err := p.ProposeVote(context.Background(), self, view); err != nil || id != 0 {
		t.Errorf("abstain = %d, %v", id, err)
	}
}

func TestLLMRetriesThenSucceeds(t *testing.T) {
	fake := &fakeLLM{
		errs:    []error{errors.New("503"), errors.New("timeout")},
		replies: []string{`{"type": "vote", "target_id": 9}`},
	}
	p := newTestLLMProvider(fake)
	id, err := p.ProposeVote(context.Background(), PlayerView{ID: 1, Name: "Alice", Role: RoleVillager, Alive: true}, testView())
	if err != nil || id != 9 {
		t.Fatalf("vote = %d, %v", id, err)
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
}

func TestLLMGivesUpAfterMaxRetries(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeLLM{errs: []error{boom, boom, boom, boom}}
	p := newTestLLMProvider(fake)
	_, err := p.ProposeVote(context.Background(), PlayerView{ID: 1, Name: "Alice", Role: RoleVillager, Alive: true}, testView())
	if !errors.Is(err, ErrProviderFailure) || !errors.Is(err, boom) {
		t.Errorf("error = %v, want provider failure wrapping boom", err)
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
}

func TestLLMStopsOnCancelledContext(t *testing.T) {
	fake := &fakeLLM{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	p := newLLMProvider(fake, AppConfig{MaxRetries: 2, RetryDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			fake.mu.Lock()
			n := fake.calls
			fake.mu.Unlock()
			if n > 0 {
				cancel()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	if _, err := p.ProposeVote(ctx, PlayerView{ID: 1, Name: "Alice", Role: RoleVillager, Alive: true}, testView()); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestPromptScopesKnowledge(t *testing.T) {
	fake := &fakeLLM{replies: []string{`{"werewolf_kill": {"target_id": 7}}`}}
	p := newTestLLMProvider(fake)
	g := newFixedGame(t, &scriptedProvider{}, defaultGameConfig())
	advanceTo(t, g, PhaseWerewolfTurn0, 0)

	wolf := g.state.playerByID(seatWolf1)
	if _, err := p.ProposeNightAction(context.Background(), wolf.view(), g.view(wolf)); err != nil {
		t.Fatal(err)
	}
	prompt := fake.prompts[0]
	for _, want := range []string{"You are Alice (id 1), the Werewolf", "Your fellow werewolves: Bob (alive); Carol (alive);", "werewolf_kill"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Grace is the Villager") {
		t.Error("werewolf prompt leaks another player's role reveal")
	}
}

func TestTrimToTokenBudgetDisabled(t *testing.T) {
	lines := []string{"a", "b", "c"}
	if got := trimToTokenBudget("gpt-4", lines, 0); len(got) != 3 {
		t.Errorf("budget 0 trimmed to %v", got)
	}
}

func TestNewDecisionProvider(t *testing.T) {
	p, err := newDecisionProvider(AppConfig{Provider: "random", Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*randomProvider); !ok {
		t.Errorf("random provider is %T", p)
	}
	if _, err := newDecisionProvider(AppConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Error("unknown provider accepted")
	}
	if _, err := newDecisionProvider(AppConfig{Provider: "openai-compatible"}); err == nil {
		t.Error("openai-compatible without a URL accepted")
	}
}

func TestBuildCallOpts(t *testing.T) {
	opts := buildCallOpts(AppConfig{Temperature: "0.3", Thinking: "sideways", MaxTokens: 256})
	if len(opts) != 2 {
		t.Errorf("got %d options, want temperature and max tokens", len(opts))
	}
	var co llms.CallOptions
	for _, o := range opts {
		o(&co)
	}
	if co.Temperature != 0.3 || co.MaxTokens != 256 {
		t.Errorf("options = %+v", co)
	}
}

func TestPromptWithoutRoleDoesNotPanic(t *testing.T) {
	fake := &fakeLLM{replies: []string{`{"type": "vote", "target_id": 2}`}}
	p := newTestLLMProvider(fake)
	id, err := p.ProposeVote(context.Background(), PlayerView{ID: 1, Name: "Alice"}, testView())
	if err != nil || id != 2 {
		t.Fatalf("vote = %d, %v", id, err)
	}
	if !strings.Contains(fake.prompts[0], "You are Alice (id 1)") {
		t.Errorf("prompt = %q", fake.prompts[0])
	}
}
