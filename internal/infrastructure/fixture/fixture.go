// Package fixture 提供不依赖外部服务的协作方实现，用于本地运行与演示
package fixture

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"kahani-story-api/internal/infrastructure/speech"
	"kahani-story-api/internal/workflow/port"
)

var storyBodies = map[string][]string{
	"en": {
		"Once upon a time, in a village at the edge of a great forest, something wonderful was about to happen.",
		"Every morning the sun peeked over the hills and every morning our friends set out to find something new.",
		"By the end of the day they had learned that courage grows when it is shared, and they walked home smiling.",
	},
	"hi": {
		"बहुत समय पहले, एक बड़े जंगल के किनारे बसे गाँव में कुछ अद्भुत होने वाला था।",
		"हर सुबह सूरज पहाड़ियों के पीछे से झाँकता और हमारे दोस्त कुछ नया खोजने निकल पड़ते।",
		"दिन के अंत तक उन्होंने सीखा कि बाँटने से हिम्मत बढ़ती है, और वे मुस्कुराते हुए घर लौटे।",
	},
	"ta": {
		"முன்னொரு காலத்தில், ஒரு பெரிய காட்டின் ஓரத்தில் இருந்த கிராமத்தில் ஒரு அதிசயம் நடக்கவிருந்தது.",
		"ஒவ்வொரு காலையும் சூரியன் மலைகளுக்குப் பின்னால் இருந்து எட்டிப் பார்த்தான், நம் நண்பர்கள் புதியதைத் தேடிப் புறப்பட்டார்கள்.",
		"நாளின் முடிவில் பகிர்ந்தால் தைரியம் வளரும் என்று கற்றுக்கொண்டு அவர்கள் புன்னகையுடன் வீடு திரும்பினார்கள்.",
	},
}

var storyTitles = map[string][]string{
	"en": {"The Secret of the Old Oak", "A Key Under the Moon", "The Brave Little Friends"},
	"hi": {"पुराने बरगद का रहस्य", "चाँद के नीचे की चाबी", "नन्हे बहादुर दोस्त"},
	"ta": {"பழைய ஆலமரத்தின் ரகசியம்", "நிலவின் கீழ் ஒரு சாவி", "துணிச்சலான சிறு நண்பர்கள்"},
}

// Generator 根据提示词哈希挑选固定文本，结果可复现
type Generator struct {
	delay time.Duration
}

// NewGenerator delay 模拟上游耗时
func NewGenerator(delay time.Duration) *Generator {
	return &Generator{delay: delay}
}

var _ port.StoryGenerator = (*Generator)(nil)

func (g *Generator) Generate(ctx context.Context, req port.GenerationRequest) (string, error) {
	if err := sleep(ctx, g.delay); err != nil {
		return "", err
	}
	lang := req.Language
	if _, ok := storyBodies[lang]; !ok {
		lang = "en"
	}
	titles := storyTitles[lang]
	title := titles[pick(req.Prompt, len(titles))]

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n\n", title)
	b.WriteString(strings.Join(storyBodies[lang], "\n\n"))
	return b.String(), nil
}

// Synthesizer 生成占位音频字节
type Synthesizer struct {
	delay time.Duration
}

func NewSynthesizer(delay time.Duration) *Synthesizer {
	return &Synthesizer{delay: delay}
}

var _ speech.Synthesizer = (*Synthesizer)(nil)

func (s *Synthesizer) Extension() string { return "mp3" }

func (s *Synthesizer) Synthesize(ctx context.Context, req speech.SynthesisRequest) ([]byte, error) {
	if err := sleep(ctx, s.delay); err != nil {
		return nil, err
	}
	header := fmt.Sprintf("ID3 fixture voice=%s style=%s speed=%.2f\n", req.Voice.VoiceID, req.Style, req.Speed)
	return append([]byte(header), req.Text...), nil
}

// Describer 返回固定的图片描述
type Describer struct{}

func NewDescriber() *Describer { return &Describer{} }

var _ port.ImageDescriber = (*Describer)(nil)

func (d *Describer) Describe(ctx context.Context, imageRef string) (string, error) {
	if strings.TrimSpace(imageRef) == "" {
		return "", fmt.Errorf("image reference is empty")
	}
	return "A colorful scene with various elements", nil
}

func pick(seed string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return int(h.Sum32() % uint32(n))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
