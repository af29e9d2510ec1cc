package tab

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

const sportsBase = "/v1/tab-info-service/sports"

// Sports lists every sport with at least one open or suspended market.
func (c *Client) Sports(ctx context.Context, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, sportsBase, query)
}

// Sport returns one sport with its open markets. Sport names are the display
// names the API uses, for example "Rugby League" or "Basketball".
func (c *Client) Sport(ctx context.Context, sport, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, fmt.Sprintf("%s/%s", sportsBase, escape(sport)), query)
}

// Competition returns one competition with open markets, for example NBA
// within Basketball.
func (c *Client) Competition(ctx context.Context, sport, competition, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/%s/competitions/%s", sportsBase, escape(sport), escape(competition))
	return c.get(ctx, path, query)
}

// Tournament returns one tournament with open markets, for example an ATP
// tournament within Tennis.
func (c *Client) Tournament(ctx context.Context, sport, competition, tournament, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/%s/competitions/%s/tournaments/%s", sportsBase, escape(sport), escape(competition), escape(tournament))
	return c.get(ctx, path, query)
}

// Match returns one match in a competition with open markets. Match names
// follow the API's "Home v Away" convention.
func (c *Client) Match(ctx context.Context, sport, competition, match, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/%s/competitions/%s/matches/%s", sportsBase, escape(sport), escape(competition), escape(match))
	return c.get(ctx, path, query)
}

// TournamentMatch returns one match inside a tournament with open markets.
func (c *Client) TournamentMatch(ctx context.Context, sport, competition, tournament, match, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/%s/competitions/%s/tournaments/%s/matches/%s",
		sportsBase, escape(sport), escape(competition), escape(tournament), escape(match))
	return c.get(ctx, path, query)
}

// SportsNextToGoOptions filter the sports next-to-go listing.
type SportsNextToGoOptions struct {
	Limit           int
	LiveBettingOnly bool
	FuturesOnly     bool
	OpenOnly        bool
}

// SportsNextToGo lists upcoming matches sorted by start time.
func (c *Client) SportsNextToGo(ctx context.Context, jurisdiction string, opts SportsNextToGoOptions) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.LiveBettingOnly {
		query.Set("liveBettingOnly", "true")
	}
	if opts.FuturesOnly {
		query.Set("futuresOnly", "true")
	}
	if opts.OpenOnly {
		query.Set("openOnly", "true")
	}
	return c.get(ctx, sportsBase+"/nextToGo", query)
}

// SportsResults lists every sport with at least one resulted market.
func (c *Client) SportsResults(ctx context.Context, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, sportsBase+"/results", query)
}

// SportResults returns one sport with resulted markets.
func (c *Client) SportResults(ctx context.Context, sport, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, fmt.Sprintf("%s/results/%s", sportsBase, escape(sport)), query)
}

// CompetitionResults returns one competition with resulted markets.
func (c *Client) CompetitionResults(ctx context.Context, sport, competition, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/results/%s/competitions/%s", sportsBase, escape(sport), escape(competition))
	return c.get(ctx, path, query)
}

// MatchResults returns one resulted match in a competition.
func (c *Client) MatchResults(ctx context.Context, sport, competition, match, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/results/%s/competitions/%s/matches/%s", sportsBase, escape(sport), escape(competition), escape(match))
	return c.get(ctx, path, query)
}

// FootyRounds lists all FootyTAB rounds for a sport such as AFL or Rugby
// League.
func (c *Client) FootyRounds(ctx context.Context, sport, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, fmt.Sprintf("%s/%s/footy/rounds", sportsBase, escape(sport)), query)
}

// FootyRound returns one FootyTAB round. series narrows sports that run more
// than one series; empty means the default series.
func (c *Client) FootyRound(ctx context.Context, sport string, round int, series, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	if series != "" {
		query.Set("series", series)
	}
	return c.get(ctx, fmt.Sprintf("%s/%s/footy/rounds/%d", sportsBase, escape(sport), round), query)
}
