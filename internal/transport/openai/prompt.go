package openai

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/shopfinder/internal/domain/product"
	"github.com/kailas-cloud/shopfinder/internal/domain/query"
)

const systemPrompt = `Bạn là trợ lý AI chuyên tư vấn điện thoại cho một cửa hàng bán lẻ tại Việt Nam.
Chọn các sản phẩm phù hợp nhất với yêu cầu của khách hàng từ danh sách được cung cấp.
Chỉ dùng id có trong danh sách. Sắp xếp theo mức độ phù hợp giảm dần.
Trả về duy nhất một JSON object:
{"results":[{"id":"...","relevance_score":0.95,"reasoning":"...","matched_criteria":["..."]}]}
relevance_score nằm trong khoảng 0.0 đến 1.0. Viết reasoning bằng tiếng Việt.`

// promptProduct is the reduced product view sent to the model.
type promptProduct struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Brand         string            `json:"brand,omitempty"`
	Category      string            `json:"category,omitempty"`
	PriceCurrent  int64             `json:"price_current"`
	PriceOriginal int64             `json:"price_original,omitempty"`
	Discount      int               `json:"discount_percentage,omitempty"`
	Specs         map[string]string `json:"specs,omitempty"`
	Promotions    []string          `json:"promotions,omitempty"`
	Availability  string            `json:"availability,omitempty"`
}

var promptSpecKeys = []string{"screen_size", "camera_main", "storage", "ram", "os", "chip", "chipset", "battery", "charging"}

type promptInput struct {
	Request     string            `json:"request"`
	Constraints query.Constraints `json:"constraints"`
	MaxResults  int               `json:"max_results"`
	Products    []promptProduct   `json:"products"`
}

func buildPrompt(cons query.Constraints, cands []product.Product, limit int) (string, error) {
	in := promptInput{
		Request:     cons.Query,
		Constraints: cons,
		MaxResults:  limit,
		Products:    make([]promptProduct, 0, len(cands)),
	}
	if in.Request == "" {
		in.Request = cons.SearchText
	}
	for i := range cands {
		in.Products = append(in.Products, reduce(&cands[i]))
	}
	data, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	return string(data), nil
}

func reduce(p *product.Product) promptProduct {
	out := promptProduct{
		ID:            p.ID,
		Name:          p.Name,
		Brand:         p.Brand,
		Category:      p.Category,
		PriceCurrent:  p.Price.Current,
		PriceOriginal: p.Price.Original,
		Discount:      p.Price.EffectiveDiscount(),
		Promotions:    p.PromotionText(),
		Availability:  p.Availability,
	}
	for _, k := range promptSpecKeys {
		if v := p.SpecValue(k); v != "" {
			if out.Specs == nil {
				out.Specs = make(map[string]string)
			}
			out.Specs[k] = v
		}
	}
	return out
}
