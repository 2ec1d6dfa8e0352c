// README: Closed evidence taxonomy attached to safety violations.
package violation

import (
	"encoding/json"
	"fmt"
	"time"

	"tripguard/internal/types"
)

// Evidence is a closed union. Every site that renders or serializes evidence
// switches over the concrete types exhaustively; an unknown variant is a
// programming error, not data.
type Evidence interface {
	evidenceKind() string
}

// SpeedLog captures the aggregated telemetry of one speeding episode.
type SpeedLog struct {
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	MaxSpeed   float64   `json:"max_speed"`
	SpeedLimit float64   `json:"speed_limit"`
	MaxExcess  float64   `json:"max_excess"`
	AvgExcess  float64   `json:"avg_excess"`
}

// RouteTrace captures where the vehicle was versus where the route said it
// should be.
type RouteTrace struct {
	Planned         types.Point   `json:"planned"`
	Actual          types.Point   `json:"actual"`
	DeviationMeters float64       `json:"deviation_m"`
	Duration        time.Duration `json:"duration_ns"`
}

type ChatMessage struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type ChatLog struct {
	Messages []ChatMessage `json:"messages"`
}

// MediaRef points at an externally stored photo, audio, or video attachment.
type MediaRef struct {
	URL        string    `json:"url"`
	MediaType  string    `json:"media_type"`
	CapturedAt time.Time `json:"captured_at"`
}

// ReportText is the rider's own account.
type ReportText struct {
	Text string `json:"text"`
}

func (SpeedLog) evidenceKind() string   { return "speed_log" }
func (RouteTrace) evidenceKind() string { return "route_trace" }
func (ChatLog) evidenceKind() string    { return "chat_log" }
func (MediaRef) evidenceKind() string   { return "media_ref" }
func (ReportText) evidenceKind() string { return "report_text" }

type evidenceEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalEvidence encodes the list as tagged envelopes for storage.
func MarshalEvidence(evs []Evidence) ([]byte, error) {
	envs := make([]evidenceEnvelope, 0, len(evs))
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		envs = append(envs, evidenceEnvelope{Kind: ev.evidenceKind(), Data: data})
	}
	return json.Marshal(envs)
}

func UnmarshalEvidence(raw []byte) ([]Evidence, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var envs []evidenceEnvelope
	if err := json.Unmarshal(raw, &envs); err != nil {
		return nil, err
	}
	out := make([]Evidence, 0, len(envs))
	for _, env := range envs {
		var ev Evidence
		switch env.Kind {
		case "speed_log":
			var v SpeedLog
			if err := json.Unmarshal(env.Data, &v); err != nil {
				return nil, err
			}
			ev = v
		case "route_trace":
			var v RouteTrace
			if err := json.Unmarshal(env.Data, &v); err != nil {
				return nil, err
			}
			ev = v
		case "chat_log":
			var v ChatLog
			if err := json.Unmarshal(env.Data, &v); err != nil {
				return nil, err
			}
			ev = v
		case "media_ref":
			var v MediaRef
			if err := json.Unmarshal(env.Data, &v); err != nil {
				return nil, err
			}
			ev = v
		case "report_text":
			var v ReportText
			if err := json.Unmarshal(env.Data, &v); err != nil {
				return nil, err
			}
			ev = v
		default:
			return nil, fmt.Errorf("unknown evidence kind %q", env.Kind)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Describe renders one evidence item as a single reviewer-facing line.
func Describe(ev Evidence) string {
	switch v := ev.(type) {
	case SpeedLog:
		return fmt.Sprintf("speed log: max %.0f km/h in a %.0f zone (%.0f over) from %s to %s",
			v.MaxSpeed, v.SpeedLimit, v.MaxExcess,
			v.StartTime.Format(time.RFC3339), v.EndTime.Format(time.RFC3339))
	case RouteTrace:
		return fmt.Sprintf("route trace: %.0f m off route for %s (at %.5f,%.5f vs planned %.5f,%.5f)",
			v.DeviationMeters, v.Duration,
			v.Actual.Lat, v.Actual.Lng, v.Planned.Lat, v.Planned.Lng)
	case ChatLog:
		return fmt.Sprintf("chat log: %d messages", len(v.Messages))
	case MediaRef:
		return fmt.Sprintf("media (%s): %s", v.MediaType, v.URL)
	case ReportText:
		return "rider statement: " + v.Text
	default:
		panic(fmt.Sprintf("unhandled evidence type %T", ev))
	}
}
