package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
)

// Оптимальные длины заголовка для поиска маркетплейса
var titleBounds = map[models.Channel][2]int{
	models.ChannelShopee:    {40, 100},
	models.ChannelTikTok:    {40, 120},
	models.ChannelTokopedia: {30, 70},
	models.ChannelLazada:    {40, 120},
}

// SEOScore оценивает карточку по шкале 0..100 и предлагает улучшения.
// На Valid не влияет.
func SEOScore(p models.ChannelPayload, ch models.Channel) models.SEOResult {
	res := models.SEOResult{Suggestions: []string{}}
	score := 0

	// заголовок: до 40 баллов
	bounds, ok := titleBounds[ch]
	if !ok {
		bounds = [2]int{40, 100}
	}
	titleLen := utf8.RuneCountInString(strings.TrimSpace(p.Title))
	switch {
	case titleLen == 0:
		res.Suggestions = append(res.Suggestions, "Add a product title")
	case titleLen < bounds[0]:
		score += 20
		res.Suggestions = append(res.Suggestions, "Lengthen the title with brand, material and key attributes")
	case titleLen > bounds[1]:
		score += 25
		res.Suggestions = append(res.Suggestions, "Shorten the title so key words stay visible in search results")
	default:
		score += 40
	}

	if containsDigit(p.Title) {
		score += 5
	} else if titleLen > 0 {
		res.Suggestions = append(res.Suggestions, "Include a size, quantity or model number in the title")
	}
	if p.Brand != "" && strings.Contains(strings.ToLower(p.Title), strings.ToLower(p.Brand)) {
		score += 10
	} else if p.Brand != "" {
		res.Suggestions = append(res.Suggestions, "Mention the brand in the title")
	}

	// описание: до 25 баллов
	descLen := utf8.RuneCountInString(strings.TrimSpace(p.Description))
	switch {
	case descLen >= 300:
		score += 25
	case descLen >= 100:
		score += 15
		res.Suggestions = append(res.Suggestions, "Expand the description to at least 300 characters")
	case descLen > 0:
		score += 5
		res.Suggestions = append(res.Suggestions, "Description is too short for search indexing")
	default:
		res.Suggestions = append(res.Suggestions, "Add a product description")
	}
	if descLen > 0 && titleKeywordsIn(p.Title, p.Description) {
		score += 5
	}

	// изображения: до 15 баллов
	switch n := len(p.Images); {
	case n >= 5:
		score += 15
	case n >= 3:
		score += 10
		res.Suggestions = append(res.Suggestions, "Add at least 5 images")
	case n > 0:
		score += 5
		res.Suggestions = append(res.Suggestions, "Add at least 5 images")
	default:
		res.Suggestions = append(res.Suggestions, "Add product images")
	}

	if len(p.Attributes) >= 3 {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	res.Score = score
	return res
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// titleKeywordsIn сообщает, встречается ли хотя бы половина значимых слов заголовка в описании
func titleKeywordsIn(title, description string) bool {
	desc := strings.ToLower(description)
	total, hits := 0, 0
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if utf8.RuneCountInString(w) < 4 {
			continue
		}
		total++
		if strings.Contains(desc, w) {
			hits++
		}
	}
	return total > 0 && hits*2 >= total
}
