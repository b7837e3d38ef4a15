package aggregio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// APIBase is the production Strava API endpoint.
const APIBase = "https://www.strava.com/api/v3"

// StravaClient is a minimal read-only client for the Strava v3 API. The
// http.Client is expected to carry OAuth credentials (see
// oauth2.Config.Client), so token refresh is handled below this layer.
type StravaClient struct {
	client *http.Client
	base   string
}

// NewStravaClient returns a client talking to `base`, or to the production
// API when base is empty.
func NewStravaClient(client *http.Client, base string) *StravaClient {
	if base == "" {
		base = APIBase
	}
	return &StravaClient{client: client, base: base}
}

func (c *StravaClient) get(ctx context.Context, path string, query url.Values, v interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("strava: %s returned %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(v)
}

// Athlete returns the authenticated athlete's profile.
func (c *StravaClient) Athlete(ctx context.Context) (Athlete, error) {
	var ath Athlete
	err := c.get(ctx, "/athlete", nil, &ath)
	return ath, err
}

// Activities returns one page of the athlete's activities, most recent first.
func (c *StravaClient) Activities(ctx context.Context, page, perPage int) ([]Activity, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	var acts []Activity
	err := c.get(ctx, "/athlete/activities", q, &acts)
	return acts, err
}

// Activity returns the detail record for a single activity.
func (c *StravaClient) Activity(ctx context.Context, id int64) (Activity, error) {
	var act Activity
	err := c.get(ctx, "/activities/"+strconv.FormatInt(id, 10), nil, &act)
	return act, err
}

// Streams returns the activity's raw data streams keyed by type.
func (c *StravaClient) Streams(ctx context.Context, id int64, keys ...string) (map[string]json.RawMessage, error) {
	q := url.Values{}
	q.Set("keys", strings.Join(keys, ","))
	q.Set("key_by_type", "true")
	var streams map[string]json.RawMessage
	err := c.get(ctx, "/activities/"+strconv.FormatInt(id, 10)+"/streams", q, &streams)
	return streams, err
}
