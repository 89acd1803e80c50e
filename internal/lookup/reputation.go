package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Result is the reputation of one address.
type Result struct {
	AverageRisk float64         `json:"average_risk"`
	BotInfo     json.RawMessage `json:"bot_info"`
}

// IsBot reports whether the service classified the address as a known bot.
// Absent, null, false, any numeric zero and "" all mean "not a bot".
func (r Result) IsBot() bool {
	b := bytes.TrimSpace(r.BotInfo)
	if len(b) == 0 {
		return false
	}

	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return true
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// ReputationClient queries the reputation service for an address.
type ReputationClient struct {
	base *url.URL
	c    caller
}

func NewReputationClient(rawURL string, opts Options) (*ReputationClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse reputation url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("reputation url %q must be absolute", rawURL)
	}
	return &ReputationClient{base: u, c: newCaller("reputation", opts)}, nil
}

// Lookup returns ErrNotFound (wrapped) when the service has no data for ip.
func (rc *ReputationClient) Lookup(ctx context.Context, ip string) (Result, error) {
	u := *rc.base
	q := u.Query()
	q.Set("ip_address", ip)
	u.RawQuery = q.Encode()

	var res Result
	if err := rc.c.getJSON(ctx, u.String(), &res); err != nil {
		return Result{}, err
	}
	return res, nil
}
