package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/ent0n29/agora/internal/orchestrator"
	"github.com/ent0n29/agora/internal/protocol"
)

type replayOptions struct {
	baseURL     string
	topic       string
	category    string
	difficulty  string
	turns       int
	turnTimeout time.Duration
	end         bool
	verbose     bool
}

var replayOpts replayOptions

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a scripted debate against a running server",
	Long: `Start a debate over HTTP, send scripted arguments over the websocket and
report per-turn latency.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 8*time.Minute)
		defer cancel()
		report, err := runReplay(ctx, replayOpts, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayOpts.baseURL, "base-url", "http://127.0.0.1:8080", "server base URL")
	f.StringVar(&replayOpts.topic, "topic", "", "custom topic (generated when empty)")
	f.StringVar(&replayOpts.category, "category", "general", "topic category")
	f.StringVar(&replayOpts.difficulty, "difficulty", "moderate", "easy, moderate or hard")
	f.IntVar(&replayOpts.turns, "turns", 4, "number of user arguments to send")
	f.DurationVar(&replayOpts.turnTimeout, "turn-timeout", 60*time.Second, "max wait for each reply")
	f.BoolVar(&replayOpts.end, "end", true, "end the debate and wait for the evaluation")
	f.BoolVarP(&replayOpts.verbose, "verbose", "v", false, "print every reply")
}

var replayArguments = []string{
	"The main benefit is clear: it saves people time and money every single day.",
	"Studies from several countries show the same pattern, for example lower costs over ten years.",
	"Your objection ignores the people who are affected most, and they deserve a voice here.",
	"Even if the transition is hard, the long term gains outweigh the short term pain.",
	"Finally, the alternative you propose has already been tried and it failed.",
}

// replayReport summarizes one replay.
type replayReport struct {
	SessionID   string
	Latencies   []time.Duration
	Errors      int
	FinalPhase  string
	ReportScore float64
}

func (r replayReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "session=%s turns=%d errors=%d final_phase=%s", r.SessionID, len(r.Latencies), r.Errors, r.FinalPhase)
	if len(r.Latencies) > 0 {
		p50, p95, mean := latencySummary(r.Latencies)
		fmt.Fprintf(&sb, " p50=%s p95=%s mean=%s", p50, p95, mean)
	}
	if r.ReportScore > 0 {
		fmt.Fprintf(&sb, " overall=%.2f", r.ReportScore)
	}
	return sb.String()
}

func latencySummary(samples []time.Duration) (p50, p95, mean time.Duration) {
	ms := make([]float64, len(samples))
	for i, d := range samples {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	sort.Float64s(ms)
	toDur := func(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }
	return toDur(stat.Quantile(0.5, stat.Empirical, ms, nil)),
		toDur(stat.Quantile(0.95, stat.Empirical, ms, nil)),
		toDur(stat.Mean(ms, nil))
}

func runReplay(ctx context.Context, opts replayOptions, logw io.Writer) (replayReport, error) {
	if opts.turns <= 0 {
		return replayReport{}, fmt.Errorf("turns must be positive")
	}
	client := &http.Client{Timeout: 45 * time.Second}
	started, err := startReplayDebate(ctx, client, opts)
	if err != nil {
		return replayReport{}, fmt.Errorf("start debate: %w", err)
	}
	report := replayReport{SessionID: started.SessionID, FinalPhase: string(started.State.Phase)}
	if opts.verbose {
		fmt.Fprintf(logw, "replay: session=%s topic=%q\n", started.SessionID, started.State.Topic)
	}

	wsURL, err := wsURLForSession(opts.baseURL, started.SessionID)
	if err != nil {
		return report, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return report, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	for i := 0; i < opts.turns; i++ {
		msg := protocol.ClientMessage{
			Type:      protocol.TypeClientMessage,
			SessionID: started.SessionID,
			Action:    protocol.ActionContinue,
			Message:   replayArguments[i%len(replayArguments)],
		}
		sent := time.Now()
		ev, err := roundTrip(conn, msg, opts.turnTimeout)
		if err != nil {
			return report, fmt.Errorf("turn %d: %w", i+1, err)
		}
		report.Latencies = append(report.Latencies, time.Since(sent))
		if ev.Type == protocol.TypeErrorEvent {
			report.Errors++
			fmt.Fprintf(logw, "replay: turn %d error_event code=%s detail=%s\n", i+1, ev.Code, ev.Detail)
			continue
		}
		report.FinalPhase = string(ev.State.Phase)
		if opts.verbose {
			fmt.Fprintf(logw, "replay: turn %d %s: %s\n", i+1, ev.AssistantTurn.Persona, ev.AssistantTurn.Content)
		}
	}

	if opts.end {
		ev, err := roundTrip(conn, protocol.ClientMessage{
			Type:      protocol.TypeClientMessage,
			SessionID: started.SessionID,
			Action:    protocol.ActionEnd,
		}, opts.turnTimeout)
		if err != nil {
			return report, fmt.Errorf("end: %w", err)
		}
		if ev.Type == protocol.TypeErrorEvent {
			return report, fmt.Errorf("end: %s: %s", ev.Code, ev.Detail)
		}
		report.FinalPhase = string(ev.State.Phase)
		if ev.Report != nil {
			total := 0.0
			for _, v := range ev.Report.Scores {
				total += v
			}
			if len(ev.Report.Scores) > 0 {
				report.ReportScore = total / float64(len(ev.Report.Scores))
			}
		}
	}
	return report, nil
}

// serverEvent is the union of the server websocket events.
type serverEvent struct {
	protocol.TurnEvent
	Report *struct {
		Scores map[string]float64 `json:"scores"`
	} `json:"evaluation_report"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func roundTrip(conn *websocket.Conn, msg protocol.ClientMessage, timeout time.Duration) (serverEvent, error) {
	if err := conn.WriteJSON(msg); err != nil {
		return serverEvent{}, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var ev serverEvent
	if err := conn.ReadJSON(&ev); err != nil {
		return serverEvent{}, err
	}
	return ev, nil
}

func startReplayDebate(ctx context.Context, client *http.Client, opts replayOptions) (orchestrator.TurnResult, error) {
	payload, err := json.Marshal(orchestrator.StartRequest{
		Category:    opts.category,
		Difficulty:  opts.difficulty,
		CustomTopic: opts.topic,
	})
	if err != nil {
		return orchestrator.TurnResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(opts.baseURL, "/")+"/v1/debates", bytes.NewReader(payload))
	if err != nil {
		return orchestrator.TurnResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return orchestrator.TurnResult{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return orchestrator.TurnResult{}, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out orchestrator.TurnResult
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return orchestrator.TurnResult{}, err
	}
	return out, nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/debates/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
