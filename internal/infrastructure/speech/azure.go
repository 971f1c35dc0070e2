package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kahani-story-api/internal/config"
)

const defaultAzureOutputFormat = "audio-24khz-48kbitrate-mono-mp3"

// AzureSynthesizer 通过 Azure Speech REST 接口合成 SSML
type AzureSynthesizer struct {
	httpClient   *http.Client
	endpoint     string
	key          string
	outputFormat string
}

// NewAzureSynthesizer 未配置 endpoint 时按 region 拼接
func NewAzureSynthesizer(cfg config.AzureSpeechConfig) *AzureSynthesizer {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", cfg.Region)
	}
	format := cfg.OutputFormat
	if format == "" {
		format = defaultAzureOutputFormat
	}
	return &AzureSynthesizer{
		httpClient:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		endpoint:     endpoint,
		key:          cfg.Key,
		outputFormat: format,
	}
}

func (s *AzureSynthesizer) Extension() string {
	if strings.Contains(s.outputFormat, "mp3") {
		return "mp3"
	}
	if strings.Contains(s.outputFormat, "ogg") {
		return "ogg"
	}
	return "wav"
}

func (s *AzureSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	body, err := buildSSML(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", s.key)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", s.outputFormat)
	httpReq.Header.Set("User-Agent", "kahani-story-api")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("azure speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("azure speech status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read azure speech body: %w", err)
	}
	return data, nil
}

// buildSSML 正文做 XML 转义；风格缺省为 chat
func buildSSML(req SynthesisRequest) ([]byte, error) {
	var text bytes.Buffer
	if err := xml.EscapeText(&text, []byte(req.Text)); err != nil {
		return nil, fmt.Errorf("escape ssml text: %w", err)
	}
	style := req.Style
	if style == "" {
		style = "chat"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="%s">`, xmlLang(req.Voice.VoiceID))
	fmt.Fprintf(&b, `<voice name="%s">`, req.Voice.VoiceID)
	fmt.Fprintf(&b, `<mstts:express-as style="%s">`, style)
	fmt.Fprintf(&b, `<prosody rate="%s" pitch="0%%">`, prosodyRate(req.Speed))
	b.Write(text.Bytes())
	b.WriteString(`</prosody></mstts:express-as></voice></speak>`)
	return b.Bytes(), nil
}

// xmlLang 从 Azure 音色名（如 hi-IN-SwaraNeural）取出区域
func xmlLang(voiceID string) string {
	parts := strings.SplitN(voiceID, "-", 3)
	if len(parts) < 3 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}

// prosodyRate 1.0 => 0%，1.25 => +25%，0.5 => -50%
func prosodyRate(speed float64) string {
	if speed <= 0 {
		return "0%"
	}
	pct := int(math.Round((speed - 1) * 100))
	if pct > 0 {
		return fmt.Sprintf("+%d%%", pct)
	}
	return fmt.Sprintf("%d%%", pct)
}
