package tab

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

const racingBase = "/v1/tab-info-service/racing"

// MeetingDates lists every date with racing meetings, including futures.
func (c *Client) MeetingDates(ctx context.Context, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, racingBase+"/dates", query)
}

// Meetings lists all meetings on a date. Dates use YYYY-MM-DD.
func (c *Client) Meetings(ctx context.Context, date, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, fmt.Sprintf("%s/dates/%s/meetings", racingBase, escape(date)), query)
}

// Races lists all races in a meeting. The venue is its three-letter mnemonic,
// for example RAN for Randwick.
func (c *Client) Races(ctx context.Context, date, raceType, venue, jurisdiction string) (json.RawMessage, error) {
	rt, err := ValidateRaceType(raceType)
	if err != nil {
		return nil, err
	}
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/dates/%s/meetings/%s/%s/races", racingBase, escape(date), rt, escape(venue))
	return c.get(ctx, path, query)
}

// Race returns one race with runners, odds and pools. fixedOdds asks for
// fixed-odds pricing alongside the tote.
func (c *Client) Race(ctx context.Context, date, raceType, venue string, raceNumber int, jurisdiction string, fixedOdds bool) (json.RawMessage, error) {
	rt, err := ValidateRaceType(raceType)
	if err != nil {
		return nil, err
	}
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	query.Set("fixedOdds", strconv.FormatBool(fixedOdds))
	path := fmt.Sprintf("%s/dates/%s/meetings/%s/%s/races/%d", racingBase, escape(date), rt, escape(venue), raceNumber)
	return c.get(ctx, path, query)
}

// NextToGoOptions filter the next-to-go listing. The zero value applies no
// filtering beyond the jurisdiction.
type NextToGoOptions struct {
	MaxRaces              int
	IncludeRecentlyClosed bool
}

// NextToGo lists upcoming races ordered by start time.
func (c *Client) NextToGo(ctx context.Context, jurisdiction string, opts NextToGoOptions) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	if opts.MaxRaces > 0 {
		query.Set("maxRaces", strconv.Itoa(opts.MaxRaces))
	}
	if opts.IncludeRecentlyClosed {
		query.Set("includeRecentlyClosed", "true")
	}
	return c.get(ctx, racingBase+"/next-to-go/races", query)
}

// RaceForm returns the form guide for every runner in a race.
func (c *Client) RaceForm(ctx context.Context, date, raceType, venue string, raceNumber int, jurisdiction string) (json.RawMessage, error) {
	rt, err := ValidateRaceType(raceType)
	if err != nil {
		return nil, err
	}
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/dates/%s/meetings/%s/%s/races/%d/form", racingBase, escape(date), rt, escape(venue), raceNumber)
	return c.get(ctx, path, query)
}

// RunnerForm returns the form guide for one runner in a race.
func (c *Client) RunnerForm(ctx context.Context, date, raceType, venue string, raceNumber int, runnerNumber, jurisdiction string) (json.RawMessage, error) {
	rt, err := ValidateRaceType(raceType)
	if err != nil {
		return nil, err
	}
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/dates/%s/meetings/%s/%s/races/%d/form/%s", racingBase, escape(date), rt, escape(venue), raceNumber, escape(runnerNumber))
	return c.get(ctx, path, query)
}

// PoolApproximates returns the approximate dividends for one wagering
// product, for example WIN, PLACE, QUINELLA, EXACTA, TRIFECTA or FIRST4.
func (c *Client) PoolApproximates(ctx context.Context, date, raceType, venue string, raceNumber int, product, jurisdiction string) (json.RawMessage, error) {
	rt, err := ValidateRaceType(raceType)
	if err != nil {
		return nil, err
	}
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/dates/%s/meetings/%s/%s/races/%d/pools/%s/approximates", racingBase, escape(date), rt, escape(venue), raceNumber, escape(product))
	return c.get(ctx, path, query)
}

// OpenJackpots lists every currently open jackpot across all meetings.
func (c *Client) OpenJackpots(ctx context.Context, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, racingBase+"/jackpots", query)
}

// JackpotPools lists the jackpot pools for a date.
func (c *Client) JackpotPools(ctx context.Context, date, jurisdiction string) (json.RawMessage, error) {
	query, err := c.jurisdictionQuery(jurisdiction)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, fmt.Sprintf("%s/dates/%s/jackpot-pools", racingBase, escape(date)), query)
}
