package services

import (
	"strings"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pkgmodels "github.com/athebyme/gomarket-platform/channel-sync/pkg/models"
	"golang.org/x/net/html"
)

// Transformer превращает товар каталога в полезную нагрузку канала
type Transformer interface {
	Transform(p pkgmodels.Product, market models.Market) models.ChannelPayload
}

// channelTransformer правила переписывания текста для одного канала
type channelTransformer struct {
	// plainDescription канал не принимает HTML в описании
	plainDescription bool
	// brandInTitle бренд ставится в начало названия, если его там нет
	brandInTitle bool
	// maxImages канал берет только первые N изображений; 0 без ограничения
	maxImages int
}

var transformers = map[models.Channel]channelTransformer{
	models.ChannelShopee:    {plainDescription: true, brandInTitle: true, maxImages: 9},
	models.ChannelTikTok:    {maxImages: 9},
	models.ChannelTokopedia: {plainDescription: true, maxImages: 5},
	models.ChannelLazada:    {brandInTitle: true, maxImages: 8},
}

var marketCurrency = map[models.Market]string{
	models.MarketID: "IDR",
	models.MarketMY: "MYR",
	models.MarketSG: "SGD",
	models.MarketTH: "THB",
	models.MarketPH: "PHP",
	models.MarketVN: "VND",
}

// TransformerFor возвращает трансформер канала. Для неизвестного канала текст не переписывается.
func TransformerFor(ch models.Channel) Transformer {
	return transformers[ch]
}

func (t channelTransformer) Transform(p pkgmodels.Product, market models.Market) models.ChannelPayload {
	title := collapseSpaces(p.Name)
	if t.brandInTitle && p.Brand != "" && !strings.Contains(strings.ToLower(title), strings.ToLower(p.Brand)) {
		title = strings.TrimSpace(p.Brand) + " " + title
	}

	description := strings.TrimSpace(p.Description)
	if t.plainDescription {
		description = stripHTML(description)
	}

	images := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	if t.maxImages > 0 && len(images) > t.maxImages {
		images = images[:t.maxImages]
	}

	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = marketCurrency[market]
	}

	var attrs map[string]string
	if len(p.Attributes) > 0 {
		attrs = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			attrs[k] = strings.TrimSpace(v)
		}
	}

	return models.ChannelPayload{
		Title:          title,
		Description:    description,
		Price:          p.Price,
		CompareAtPrice: p.CompareAtPrice,
		Currency:       currency,
		Stock:          p.Stock,
		SKU:            strings.TrimSpace(p.SKU),
		Brand:          strings.TrimSpace(p.Brand),
		CategoryID:     strings.TrimSpace(p.CategoryID),
		Images:         images,
		WeightGrams:    p.WeightGrams,
		Attributes:     attrs,
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripHTML оставляет только текст; блочные теги и <br> превращаются в переводы строк
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return normalizeLines(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br", "p", "div", "li", "ul", "ol", "h1", "h2", "h3", "h4", "tr":
				b.WriteByte('\n')
			}
		}
	}
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = collapseSpaces(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
