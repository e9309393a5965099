// Package calendar reads busy intervals from a Google Calendar via the
// free/busy API, authenticated as a service account. Strictly read-only.
package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
)

// Client queries one calendar's free/busy data.
type Client struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

func NewClient(ctx context.Context, calendarID, clientEmail, privateKey string, loc *time.Location) (*Client, error) {
	conf := &jwt.Config{
		Email:      clientEmail,
		PrivateKey: []byte(privateKey),
		Scopes:     []string{gcal.CalendarReadonlyScope},
		TokenURL:   google.JWTTokenURL,
	}

	svc, err := gcal.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &Client{svc: svc, calendarID: calendarID, loc: loc}, nil
}

// BusyIntervals returns the busy periods between start and end, converted
// into the business timezone at this boundary. Periods the API reports with
// unparseable timestamps are skipped.
func (c *Client) BusyIntervals(ctx context.Context, start, end time.Time) ([]model.BusyInterval, error) {
	req := &gcal.FreeBusyRequest{
		TimeMin:  start.Format(time.RFC3339),
		TimeMax:  end.Format(time.RFC3339),
		TimeZone: c.loc.String(),
		Items:    []*gcal.FreeBusyRequestItem{{Id: c.calendarID}},
	}

	resp, err := c.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, nil
	}

	intervals := make([]model.BusyInterval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		from, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			continue
		}
		to, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			continue
		}
		intervals = append(intervals, model.BusyInterval{
			Start: from.In(c.loc),
			End:   to.In(c.loc),
		})
	}
	return intervals, nil
}
