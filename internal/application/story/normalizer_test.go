package story

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/domain/entity"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(config.DefaultStoryCatalog())
}

func TestNormalizeMinimalPayloads(t *testing.T) {
	n := newTestNormalizer()
	cases := []struct {
		kind    entity.InputKind
		payload string
	}{
		{entity.InputKindScenario, `{"scenario":"A brave little mouse finds a key"}`},
		{entity.InputKindImage, `{"image_url":"https://img.example/cat.png"}`},
		{entity.InputKindCharacters, `{"characters":[{"name":"Maya"}]}`},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			req, err := n.Normalize(RawInput{InputKind: string(tc.kind), Payload: json.RawMessage(tc.payload), Language: "en"})
			require.NoError(t, err)
			assert.Equal(t, tc.kind, req.InputKind)
			assert.True(t, req.PayloadConsistent())
			assert.Equal(t, "cheerful", req.Tone)
			assert.Equal(t, "kids", req.Audience)
			assert.Equal(t, 500, req.Length)
		})
	}
}

func TestNormalizeEmptyScenario(t *testing.T) {
	n := newTestNormalizer()
	for _, text := range []string{"", "   ", "\n\t"} {
		payload, _ := json.Marshal(map[string]string{"scenario": text})
		_, err := n.Normalize(RawInput{InputKind: "scenario", Payload: payload, Language: "en"})

		var ve *entity.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "scenario", ve.Field)
	}
}

func TestNormalizeRejections(t *testing.T) {
	n := newTestNormalizer()
	scenario := json.RawMessage(`{"scenario":"A fox learns to share"}`)

	cases := []struct {
		name  string
		raw   RawInput
		field string
	}{
		{"unknown language", RawInput{InputKind: "scenario", Payload: scenario, Language: "xx"}, "language"},
		{"unknown tone", RawInput{InputKind: "scenario", Payload: scenario, Tone: "grim"}, "tone"},
		{"unknown audience", RawInput{InputKind: "scenario", Payload: scenario, Audience: "robots"}, "target_audience"},
		{"length below min", RawInput{InputKind: "scenario", Payload: scenario, Length: 50}, "length"},
		{"length above max", RawInput{InputKind: "scenario", Payload: scenario, Length: 5000}, "length"},
		{"missing image", RawInput{InputKind: "image", Payload: json.RawMessage(`{"caption":"x"}`)}, "image_url"},
		{"no characters", RawInput{InputKind: "characters", Payload: json.RawMessage(`{"characters":[]}`)}, "characters"},
		{"blank character name", RawInput{InputKind: "characters", Payload: json.RawMessage(`{"characters":[{"name":"Maya"},{"name":" "}]}`)}, "characters[1].name"},
		{"missing payload", RawInput{InputKind: "scenario"}, "payload"},
		{"payload shape mismatch", RawInput{InputKind: "characters", Payload: json.RawMessage(`{"characters":"Maya"}`)}, "payload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(tc.raw)
			var ve *entity.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestNormalizeUnsupportedKind(t *testing.T) {
	_, err := newTestNormalizer().Normalize(RawInput{InputKind: "poem", Payload: json.RawMessage(`{}`)})
	var ue *entity.UnsupportedInputKindError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "poem", ue.Kind)
}

func TestNormalizeTrimsAndKeepsCaption(t *testing.T) {
	req, err := newTestNormalizer().Normalize(RawInput{
		InputKind: "image",
		Payload:   json.RawMessage(`{"image_url":" img://42 ","caption":"  my grandmother's garden "}`),
		Language:  "TA",
		Tone:      "Calm",
	})
	require.NoError(t, err)
	assert.Equal(t, "img://42", req.Image.ImageRef)
	assert.Equal(t, "my grandmother's garden", req.Image.Caption)
	assert.Equal(t, "ta", req.Language)
	assert.Equal(t, "calm", req.Tone)
	assert.True(t, req.NeedsVision())
}

func TestNormalizeOptions(t *testing.T) {
	n := newTestNormalizer()

	opts, err := n.NormalizeOptions(RawOptions{GenerateAudio: true}, "hi")
	require.NoError(t, err)
	assert.Equal(t, entity.NarrationOptions{GenerateAudio: true, Voice: "narrator_hi", Emotion: "neutral", Speed: 1.0}, opts)

	opts, err = n.NormalizeOptions(RawOptions{}, "en")
	require.NoError(t, err)
	assert.Equal(t, entity.NarrationOptions{}, opts)

	var ve *entity.ValidationError
	_, err = n.NormalizeOptions(RawOptions{GenerateAudio: true, Voice: "robot_en"}, "en")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "voice", ve.Field)

	_, err = n.NormalizeOptions(RawOptions{GenerateAudio: true, Voice: "hero_hi"}, "en")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "voice", ve.Field)
	assert.Contains(t, ve.Reason, "does not support language")

	opts, err = n.NormalizeOptions(RawOptions{GenerateAudio: true, Voice: "hero_hi"}, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hero_hi", opts.Voice)

	_, err = n.NormalizeOptions(RawOptions{GenerateAudio: true, Emotion: "bored"}, "en")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "emotion", ve.Field)

	_, err = n.NormalizeOptions(RawOptions{GenerateAudio: true, Speed: 3}, "en")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "speed", ve.Field)
}
