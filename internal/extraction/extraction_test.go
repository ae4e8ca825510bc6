package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel replays canned responses in order
type fakeModel struct {
	responses []string
	err       error
	calls     int
	lastOpts  llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, opt := range options {
		opt(&f.lastOpts)
	}
	if f.err != nil {
		return nil, f.err
	}
	i := min(f.calls, len(f.responses)-1)
	f.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.responses[i]}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

var fixedNow = time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

func newTestExtractor(model llms.Model) *LLMExtractor {
	e := NewLLMExtractorWithModel(model)
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestExtract_FullPayload(t *testing.T) {
	model := &fakeModel{responses: []string{"```json\n" + `{
		"origin_address": "Padova",
		"destination_address": "Venezia",
		"buffer_distance": 6,
		"start_window": "2025-09-03T06:00:00",
		"end_window": "2025-09-07T15:00:00",
		"query_text": "music",
		"result_limit": 13,
		"travel_profile": "cycling-regular",
	}` + "\n```"}}

	got, err := newTestExtractor(model).Extract(context.Background(), "From Padova to Venezia by bike, music events")
	require.NoError(t, err)

	assert.Equal(t, "Padova", got.OriginAddress)
	assert.Equal(t, "Venezia", got.DestinationAddress)
	assert.Equal(t, 6.0, *got.BufferDistance)
	assert.Equal(t, time.Date(2025, 9, 3, 6, 0, 0, 0, time.UTC), got.StartWindow.Time)
	assert.Equal(t, time.Date(2025, 9, 7, 15, 0, 0, 0, time.UTC), got.EndWindow.Time)
	assert.Equal(t, "music", got.QueryText)
	assert.Equal(t, 13, *got.ResultLimit)
	assert.Equal(t, string(models.ProfileCycling), got.TravelProfile)

	assert.True(t, model.lastOpts.JSONMode)
	assert.Equal(t, 0.0, model.lastOpts.Temperature)

	// the payload must feed straight into the route events request
	q, err := got.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 13, q.Limit)
}

func TestExtract_Defaults(t *testing.T) {
	model := &fakeModel{responses: []string{`{"origin_address":"Verona","destination_address":"Vicenza"}`}}

	got, err := newTestExtractor(model).Extract(context.Background(), "Verona to Vicenza")
	require.NoError(t, err)

	assert.Equal(t, models.DefaultBufferKm, *got.BufferDistance)
	assert.Equal(t, fixedNow, got.StartWindow.Time)
	assert.Equal(t, fixedNow.AddDate(0, 0, DefaultWindowDays), got.EndWindow.Time)
	assert.Equal(t, DefaultResultLimit, *got.ResultLimit)
	assert.Equal(t, string(models.ProfileDriving), got.TravelProfile)
	assert.Empty(t, got.QueryText)
}

func TestExtract_DefaultEndFollowsNow(t *testing.T) {
	model := &fakeModel{responses: []string{`{"origin_address":"Verona","destination_address":"Vicenza","start_window":"2025-09-02T09:00:00"}`}}

	got, err := newTestExtractor(model).Extract(context.Background(), "Verona to Vicenza from tomorrow")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 9, 2, 9, 0, 0, 0, time.UTC), got.StartWindow.Time)
	assert.Equal(t, fixedNow.AddDate(0, 0, DefaultWindowDays), got.EndWindow.Time)

	// a start past the default end needs an explicit end
	late := &fakeModel{responses: []string{`{"origin_address":"Verona","destination_address":"Vicenza","start_window":"2025-09-20T09:00:00"}`}}
	_, err = newTestExtractor(late).Extract(context.Background(), "Verona to Vicenza on the 20th")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_window", verr.Fields[0].Field)
}

func TestExtract_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"start after end", `{"origin_address":"A","destination_address":"B","start_window":"2025-09-07T00:00:00","end_window":"2025-09-03T00:00:00"}`, "end_window"},
		{"missing destination", `{"origin_address":"A"}`, "destination_address"},
		{"bad profile", `{"origin_address":"A","destination_address":"B","travel_profile":"boat"}`, "travel_profile"},
		{"bad buffer", `{"origin_address":"A","destination_address":"B","buffer_distance":0}`, "buffer_distance"},
		{"bad date", `{"origin_address":"A","destination_address":"B","start_window":"tomorrow"}`, "start_window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestExtractor(&fakeModel{responses: []string{tt.body}}).Extract(context.Background(), "sentence")
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestExtract_RetriesMalformedJSON(t *testing.T) {
	model := &fakeModel{responses: []string{
		`not json at all`,
		`{"origin_address":"A","destination_address":"B"}`,
	}}
	got, err := newTestExtractor(model).Extract(context.Background(), "A to B")
	require.NoError(t, err)
	assert.Equal(t, "A", got.OriginAddress)
	assert.Equal(t, 2, model.calls)

	broken := &fakeModel{responses: []string{`{"origin_address":`}}
	_, err = newTestExtractor(broken).Extract(context.Background(), "A to B")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, maxAttempts, broken.calls)
}

func TestExtract_ModelError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := newTestExtractor(&fakeModel{err: boom}).Extract(context.Background(), "A to B")
	assert.ErrorIs(t, err, boom)

	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
}

func TestExtract_EmptySentence(t *testing.T) {
	model := &fakeModel{responses: []string{`{}`}}
	_, err := newTestExtractor(model).Extract(context.Background(), "   ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, model.calls)
}

func TestRepairJSON(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```":         `{"a":1}`,
		`Here you go: {"a":[1,2,],} done`: `{"a":[1,2]}`,
		`{"a":"x, }"}`:                    `{"a":"x, }"}`,
		`{"a":"q\"," ,}`:                  `{"a":"q\"," }`,
	}
	for in, want := range tests {
		assert.Equal(t, want, repairJSON(in), in)
	}
}

func TestNewLLMExtractor_RequiresModel(t *testing.T) {
	_, err := NewLLMExtractor(Config{Host: "http://localhost:11434"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
