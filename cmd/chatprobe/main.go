package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/antoniostano/chatdesk/internal/dialogue"
	"github.com/antoniostano/chatdesk/internal/observability"
	"github.com/antoniostano/chatdesk/internal/protocol"
	"github.com/antoniostano/chatdesk/internal/session"
)

type options struct {
	baseURL        string
	userID         string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	clearEvery     int
	verbose        bool
}

type wsEnvelope struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id,omitempty"`
	Role   string `json:"role,omitempty"`
	Text   string `json:"text,omitempty"`
	Replay bool   `json:"replay,omitempty"`
	Busy   bool   `json:"busy,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

var defaultTexts = []string{
	"What is my account balance?",
	"Show my last five transactions.",
	"How do I order a new card?",
	"Explain the **overdraft** fee in one sentence.",
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := newCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("chatprobe failed")
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		opts     options
		textsRaw string
	)
	cmd := &cobra.Command{
		Use:           "chatprobe",
		Short:         "Drive synthetic turns through a running chat server and report reply latency",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.normalize(textsRaw); err != nil {
				return err
			}
			snap, err := run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printSnapshot(cmd.OutOrStdout(), snap)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:8080", "chat server base URL")
	f.StringVar(&opts.userID, "user-id", "chatprobe", "user_id for the synthetic session")
	f.IntVar(&opts.turns, "turns", 10, "number of turns to send")
	f.DurationVar(&opts.interTurnDelay, "inter-turn", 150*time.Millisecond, "delay between turns")
	f.DurationVar(&opts.turnTimeout, "turn-timeout", 70*time.Second, "timeout waiting for each model turn")
	f.StringVar(&textsRaw, "texts", "", "messages separated by '|' (optional)")
	f.IntVar(&opts.clearEvery, "clear-every", 0, "send a clear control after every N turns (0 disables)")
	f.BoolVar(&opts.verbose, "verbose", false, "log every turn")
	return cmd
}

func (o *options) normalize(textsRaw string) error {
	o.baseURL = strings.TrimRight(strings.TrimSpace(o.baseURL), "/")
	if o.baseURL == "" {
		return errors.New("base-url is required")
	}
	if o.turns <= 0 {
		return errors.New("turns must be > 0")
	}
	if o.clearEvery < 0 {
		return errors.New("clear-every must be >= 0")
	}
	if o.interTurnDelay < 0 {
		o.interTurnDelay = 0
	}
	if o.turnTimeout < time.Second {
		o.turnTimeout = time.Second
	}
	o.texts = splitTexts(textsRaw)
	if strings.TrimSpace(textsRaw) != "" && len(o.texts) == 0 {
		return errors.New("texts produced no non-empty messages")
	}
	if len(o.texts) == 0 {
		o.texts = append([]string(nil), defaultTexts...)
	}
	return nil
}

func splitTexts(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func run(ctx context.Context, opts options) (observability.TurnStageSnapshot, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	sessionID, err := createSession(ctx, httpClient, opts)
	if err != nil {
		return observability.TurnStageSnapshot{}, errors.Wrap(err, "create session")
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, opts.baseURL, sessionID)
	}()

	wsURL, err := wsURLForSession(opts.baseURL, sessionID)
	if err != nil {
		return observability.TurnStageSnapshot{}, errors.Wrap(err, "build ws URL")
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return observability.TurnStageSnapshot{}, errors.Wrap(err, "open websocket")
	}
	defer conn.Close()

	events := make(chan wsEnvelope, 256)
	readErr := make(chan error, 1)
	go readLoop(conn, events, readErr)

	window := observability.NewLatencyWindow(opts.turns)
	log.Info().Str("session_id", sessionID).Int("turns", opts.turns).Msg("chatprobe started")

	for i := 0; i < opts.turns; i++ {
		text := opts.texts[i%len(opts.texts)]
		started := time.Now()
		if err := conn.WriteJSON(protocol.ClientSubmit{
			Type:      protocol.TypeClientSubmit,
			SessionID: sessionID,
			Text:      text,
		}); err != nil {
			return observability.TurnStageSnapshot{}, errors.Wrapf(err, "turn %d send", i+1)
		}

		result, err := awaitModelTurn(events, readErr, opts.turnTimeout)
		if err != nil {
			return observability.TurnStageSnapshot{}, errors.Wrapf(err, "turn %d", i+1)
		}
		elapsed := time.Since(started)
		switch {
		case result.Type == string(protocol.TypeSystemEvent):
			window.Count(result.Code)
		case result.Text == dialogue.FailureNotice:
			window.Observe(observability.StageFailure, elapsed)
		default:
			window.Observe(observability.StageReply, elapsed)
		}
		if opts.verbose {
			log.Info().Int("turn", i+1).Dur("latency", elapsed).Str("text", text).Msg("turn complete")
		}

		if opts.clearEvery > 0 && (i+1)%opts.clearEvery == 0 {
			if err := sendClear(conn, sessionID, events, readErr, opts.turnTimeout); err != nil {
				return observability.TurnStageSnapshot{}, errors.Wrapf(err, "clear after turn %d", i+1)
			}
			window.Count("transcript_cleared")
		}
		if opts.interTurnDelay > 0 && i < opts.turns-1 {
			time.Sleep(opts.interTurnDelay)
		}
	}
	return window.Snapshot(), nil
}

// awaitModelTurn returns the next live model turn, or the system event that
// reports the submission was not answered.
func awaitModelTurn(events <-chan wsEnvelope, readErr <-chan error, timeout time.Duration) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case env := <-events:
			switch env.Type {
			case string(protocol.TypeTurnRendered):
				if env.Role == string(session.RoleModel) && !env.Replay {
					return env, nil
				}
			case string(protocol.TypeSystemEvent):
				if strings.HasPrefix(env.Code, "submit_") {
					return env, nil
				}
			case string(protocol.TypeErrorEvent):
				log.Warn().Str("code", env.Code).Str("detail", env.Detail).Msg("error_event")
			}
		case err := <-readErr:
			return wsEnvelope{}, errors.Wrap(err, "ws read")
		case <-timer.C:
			return wsEnvelope{}, errors.New("timed out waiting for model turn")
		}
	}
}

func sendClear(conn *websocket.Conn, sessionID string, events <-chan wsEnvelope, readErr <-chan error, timeout time.Duration) error {
	if err := conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    protocol.ActionClear,
	}); err != nil {
		return err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case env := <-events:
			if env.Type == string(protocol.TypeTranscriptCleared) {
				return nil
			}
		case err := <-readErr:
			return errors.Wrap(err, "ws read")
		case <-timer.C:
			return errors.New("timed out waiting for transcript_cleared")
		}
	}
}

func createSession(ctx context.Context, client *http.Client, opts options) (string, error) {
	payload, err := json.Marshal(session.CreateRequest{UserID: opts.userID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.baseURL+"/v1/chat/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", errors.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out session.CreateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", errors.New("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErr chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErr <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		events <- env
	}
}

func printSnapshot(w io.Writer, snap observability.TurnStageSnapshot) error {
	for _, s := range snap.Stages {
		if _, err := fmt.Fprintf(w, "%-18s n=%-4d avg=%8.2fms p50=%8.2fms p95=%8.2fms p99=%8.2fms\n",
			s.Stage, s.Samples, s.AvgMS, s.P50MS, s.P95MS, s.P99MS); err != nil {
			return err
		}
	}
	for _, ind := range snap.Indicators {
		if _, err := fmt.Fprintf(w, "%-18s count=%d\n", ind.Name, ind.Count); err != nil {
			return err
		}
	}
	return nil
}
