package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/rehearse/internal/fallback"
	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/observe"
	"github.com/yoockh/rehearse/internal/providers/llm"
)

// ScriptedStrategy is the name reported when the built-in question ladder
// produced the reply.
const ScriptedStrategy = "scripted"

// scriptedLadder holds the follow-ups asked after the scenario's opening
// question. Entry i answers assistant turn i+1.
var scriptedLadder = []string{
	"What part of that experience did you find most challenging, and how did you handle it?",
	"Can you give me a specific example of a decision you made and what happened as a result?",
	"How did the people around you respond, and what did you learn from their reaction?",
	"If you faced the same situation again, what would you do differently?",
	"What strengths do you think helped you most in that situation?",
	"How do you usually prepare when you know a difficult conversation is coming?",
	"What is one goal you are working toward right now, and what is your next step?",
}

const promptContract = `Rules for every reply:
- End with exactly one question for the user.
- Refer to something specific from the user's previous answer.
- Never reply with a generic acknowledgment on its own.
- Keep replies to two or three short sentences.`

// TurnService produces the next assistant line of a session.
type TurnService interface {
	// BuildSystemPrompt is assembled once at session start.
	BuildSystemPrompt(scenario string, skills, hints []string) string
	Opening(scenario string) string
	// Continue always returns a reply; source names the strategy that made it.
	Continue(ctx context.Context, systemPrompt string, transcript []models.TranscriptEntry) (reply, source string)
}

type turnInput struct {
	system  string
	history []llm.Message
	asked   int
}

type turnService struct {
	scenarios Scenarios
	chain     *fallback.Chain[turnInput, string]
	log       logrus.FieldLogger
	met       *observe.Metrics
}

// NewTurnService tries providers in order and ends with the scripted ladder.
func NewTurnService(scenarios Scenarios, providers []llm.Provider, log logrus.FieldLogger, met *observe.Metrics) TurnService {
	if met == nil {
		met = observe.Noop()
	}
	s := &turnService{scenarios: scenarios, log: log, met: met}

	var strategies []fallback.Strategy[turnInput, string]
	for _, p := range providers {
		if p == nil {
			continue
		}
		strategies = append(strategies, fallback.Strategy[turnInput, string]{
			Name: p.Name(),
			Run: func(ctx context.Context, in turnInput) (string, error) {
				out, err := p.Reply(ctx, in.system, in.history)
				if err != nil {
					return "", err
				}
				out = strings.TrimSpace(out)
				if out == "" {
					return "", fmt.Errorf("%s: empty reply", p.Name())
				}
				return out, nil
			},
		})
	}
	strategies = append(strategies, fallback.Strategy[turnInput, string]{
		Name: ScriptedStrategy,
		Run: func(_ context.Context, in turnInput) (string, error) {
			return ScriptedQuestion(in.asked), nil
		},
	})
	s.chain = fallback.New("continue", log, strategies...).Observe(met.RecordStrategy)
	return s
}

// ScriptedQuestion returns the follow-up for the given number of assistant
// turns already asked, the opening included. A transcript without an opening
// gets the first follow-up. Past the end it cycles.
func ScriptedQuestion(asked int) string {
	i := max(asked-1, 0)
	return scriptedLadder[i%len(scriptedLadder)]
}

func (s *turnService) Opening(scenario string) string {
	return s.scenarios.Lookup(scenario).Opening
}

func (s *turnService) BuildSystemPrompt(scenario string, skills, hints []string) string {
	sc := s.scenarios.Lookup(scenario)

	var b strings.Builder
	b.WriteString(strings.TrimSpace(sc.Template))
	b.WriteString("\n\n")
	if len(skills) > 0 {
		b.WriteString("The user wants to practice: ")
		b.WriteString(strings.Join(skills, ", "))
		b.WriteString(".\n\n")
	}
	if len(hints) > 0 {
		b.WriteString("Adapt to this user:\n")
		for _, h := range hints {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(promptContract)
	return b.String()
}

func (s *turnService) Continue(ctx context.Context, systemPrompt string, transcript []models.TranscriptEntry) (string, string) {
	start := time.Now()
	defer s.met.RecordStage(ctx, "continue", start)

	in := turnInput{system: systemPrompt}
	for _, e := range transcript {
		switch e.Role {
		case models.RoleUser:
			in.history = append(in.history, llm.Message{Role: llm.RoleUser, Content: e.Text})
		case models.RoleAssistant:
			in.history = append(in.history, llm.Message{Role: llm.RoleAssistant, Content: e.Text})
			in.asked++
		}
	}

	reply, source, err := s.chain.Run(ctx, in)
	if err != nil {
		// the scripted strategy never fails; this only guards a misbuilt chain
		return ScriptedQuestion(in.asked), ScriptedStrategy
	}
	if !strings.HasSuffix(reply, "?") {
		s.met.ReplyContractViolations.Add(ctx, 1)
		s.log.WithFields(logrus.Fields{"stage": "continue", "strategy": source}).Warn("reply does not end with a question")
	}
	return reply, source
}
