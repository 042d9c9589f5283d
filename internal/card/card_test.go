package card

import (
	"testing"
	"time"

	"eventreg/internal/model"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestNew_Actions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  model.Event
		action Action
		link   string
	}{
		{"custom form wins over link", model.Event{ID: "1", Date: "2025-07-01", UseCustomForm: true, GoogleFormLink: "https://forms.example/x"}, ActionOpenForm, "/events/1/register"},
		{"external form link", model.Event{ID: "2", Date: "2025-07-01", GoogleFormLink: "https://forms.example/x"}, ActionExternalLink, "https://forms.example/x"},
		{"falls back to built in form", model.Event{ID: "3", Date: "2025-07-01"}, ActionOpenForm, "/events/3/register"},
		{"past with results", model.Event{ID: "4", Date: "2025-01-01", ResultLink: "https://results.example"}, ActionViewResults, "https://results.example"},
		{"past without results", model.Event{ID: "5", Date: "2025-01-01", UseCustomForm: true}, ActionNone, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := New(tc.event, now)
			require.Equal(t, tc.action, c.Action)
			require.Equal(t, tc.link, c.Link)
		})
	}
}

func TestNew_Labels(t *testing.T) {
	t.Parallel()
	c := New(model.Event{Title: "Quiz", Date: "2025-03-09T00:00:00Z", Time: "5 PM", Description: "Fun"}, now)
	require.Equal(t, "March 9, 2025", c.DateLabel)
	require.True(t, c.Past)
	require.Equal(t, "5 PM", c.Time)

	c = New(model.Event{Title: "TBA"}, now)
	require.Empty(t, c.DateLabel)
	require.False(t, c.Past)
}

func TestSplit(t *testing.T) {
	t.Parallel()
	events := []model.Event{
		{ID: "late", Date: "2025-09-01"},
		{ID: "old", Date: "2024-01-01"},
		{ID: "soon", Date: "2025-06-10"},
		{ID: "recent", Date: "2025-05-01"},
	}
	upcoming, past := Split(events, now)
	require.Equal(t, []string{"soon", "late"}, ids(upcoming))
	require.Equal(t, []string{"recent", "old"}, ids(past))
}

func ids(cards []Card) []string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.EventID)
	}
	return out
}
