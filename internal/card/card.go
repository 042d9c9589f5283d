// Package card turns events into the view model of a listing card.
package card

import (
	"sort"
	"time"

	"eventreg/internal/model"
)

type Action int

const (
	ActionNone Action = iota
	ActionOpenForm
	ActionExternalLink
	ActionViewResults
)

type Card struct {
	EventID     string
	Title       string
	DateLabel   string
	Time        string
	Description string
	Past        bool
	Action      Action
	Link        string
}

func (c Card) OpensForm() bool { return c.Action == ActionOpenForm }
func (c Card) OpensLink() bool { return c.Action == ActionExternalLink }
func (c Card) ShowsResults() bool { return c.Action == ActionViewResults }
func (c Card) HasAnyAction() bool { return c.Action != ActionNone }

const dateLabelLayout = "January 2, 2006"

func New(e model.Event, now time.Time) Card {
	c := Card{
		EventID:     e.ID,
		Title:       e.Title,
		Time:        e.Time,
		Description: e.Description,
		Past:        e.DeadlinePassed(now),
	}
	if t, ok := e.When(); ok {
		c.DateLabel = t.Format(dateLabelLayout)
	}

	switch {
	case c.Past && e.ResultLink != "":
		c.Action, c.Link = ActionViewResults, e.ResultLink
	case c.Past:
		c.Action = ActionNone
	case e.UseCustomForm:
		c.Action, c.Link = ActionOpenForm, "/events/"+e.ID+"/register"
	case e.GoogleFormLink != "":
		c.Action, c.Link = ActionExternalLink, e.GoogleFormLink
	default:
		c.Action, c.Link = ActionOpenForm, "/events/"+e.ID+"/register"
	}
	return c
}

// Split builds cards and separates upcoming from past events. Upcoming
// events are ordered soonest first, past ones most recent first.
func Split(events []model.Event, now time.Time) (upcoming, past []Card) {
	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, _ := sorted[i].When()
		tj, _ := sorted[j].When()
		return ti.Before(tj)
	})
	for _, e := range sorted {
		c := New(e, now)
		if c.Past {
			past = append([]Card{c}, past...)
			continue
		}
		upcoming = append(upcoming, c)
	}
	return upcoming, past
}
