package handler

import (
	"github.com/gin-gonic/gin"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/infrastructure/fixture"
	"kahani-story-api/internal/interfaces/http/dto"
)

// CatalogHandler 故事目录、音色与示例
type CatalogHandler struct {
	catalog *config.StoryCatalog
	samples *fixture.Samples
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(catalog *config.StoryCatalog, samples *fixture.Samples) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, samples: samples}
}

// GetCatalog 可接受的语言、语气、受众与长度范围
// @Summary 故事目录
// @Tags Catalog
// @Produce json
// @Success 200 {object} dto.Response[dto.CatalogResponse]
// @Router /v1/catalog [get]
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	dto.Success(c, dto.ToCatalogResponse(h.catalog))
}

// ListVoices 按语言列出音色；language 为空时返回全部
// @Summary 音色列表
// @Tags Catalog
// @Produce json
// @Param language query string false "语言"
// @Success 200 {object} dto.Response[dto.VoicesResponse]
// @Router /v1/voices [get]
func (h *CatalogHandler) ListVoices(c *gin.Context) {
	language := c.Query("language")
	if language != "" && !h.catalog.HasLanguage(language) {
		dto.BadRequest(c, "unsupported language: "+language)
		return
	}
	h.respondVoices(c, language)
}

// ListVoicePresets 全部音色预设
// @Summary 音色预设
// @Tags Catalog
// @Produce json
// @Success 200 {object} dto.Response[dto.VoicesResponse]
// @Router /v1/voices/presets [get]
func (h *CatalogHandler) ListVoicePresets(c *gin.Context) {
	h.respondVoices(c, "")
}

func (h *CatalogHandler) respondVoices(c *gin.Context, language string) {
	lo, hi, def := h.catalog.SpeedBounds()
	dto.Success(c, &dto.VoicesResponse{
		Language: language,
		Voices:   h.catalog.Voices(language),
		Speed:    dto.SpeedBounds{Min: lo, Max: hi, Default: def},
	})
}

// ListEmotions 旁白情绪
// @Summary 旁白情绪
// @Tags Catalog
// @Produce json
// @Success 200 {object} dto.Response[dto.EmotionsResponse]
// @Router /v1/voices/emotions [get]
func (h *CatalogHandler) ListEmotions(c *gin.Context) {
	dto.Success(c, &dto.EmotionsResponse{
		Emotions: h.catalog.Emotions(),
		Default:  h.catalog.DefaultEmotion(),
	})
}

// ListSamples 示例场景与角色组
// @Summary 示例内容
// @Tags Catalog
// @Produce json
// @Param language query string false "语言"
// @Success 200 {object} dto.Response[dto.SamplesResponse]
// @Router /v1/samples [get]
func (h *CatalogHandler) ListSamples(c *gin.Context) {
	language := c.Query("language")
	if language != "" && !h.catalog.HasLanguage(language) {
		dto.BadRequest(c, "unsupported language: "+language)
		return
	}
	if h.samples == nil {
		dto.Success(c, &dto.SamplesResponse{Scenarios: map[string][]string{}})
		return
	}
	dto.Success(c, &dto.SamplesResponse{
		Scenarios:     h.samples.ScenariosFor(language),
		CharacterSets: h.samples.CharacterSets,
	})
}
