package connector

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/shopspring/decimal"
)

// Operation логическая операция над листингами канала
type Operation string

const (
	OpCreateListing Operation = "create_listing"
	OpUpdateListing Operation = "update_listing"
	OpGetListing    Operation = "get_listing"
	OpUpdateStatus  Operation = "update_status"
	OpUpdateStock   Operation = "update_stock"
	OpUpdatePrice   Operation = "update_price"
	OpListListings  Operation = "list_listings"
	OpListOrders    Operation = "list_orders"
)

// ChannelSpec описывает эндпоинты канала и форму тел запросов
type ChannelSpec struct {
	Channel   models.Channel
	Endpoints map[Operation]Endpoint

	listingBody func(p models.ChannelPayload, externalID string) interface{}
	statusBody  func(externalID string, active bool) interface{}
	stockBody   func(externalID string, stock int) interface{}
	priceBody   func(externalID string, price decimal.Decimal) interface{}
	// getRequest заполняет PathID или Query запроса чтения листинга
	getRequest  func(req *Request, externalID string)
	listQuery   func(offset, limit int) map[string]string
	ordersQuery func(since time.Time, cursor string, limit int) map[string]string
	listingURL  func(externalID, shopID string) string
}

// Endpoint возвращает описание операции или ErrUnknownOperation
func (s *ChannelSpec) Endpoint(op Operation) (Endpoint, error) {
	ep, ok := s.Endpoints[op]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s/%s", ErrUnknownOperation, s.Channel, op)
	}
	return ep, nil
}

// SpecFor возвращает описание канала
func SpecFor(ch models.Channel) (*ChannelSpec, error) {
	switch ch {
	case models.ChannelShopee:
		return shopeeSpec(), nil
	case models.ChannelTikTok:
		return tiktokSpec(), nil
	case models.ChannelTokopedia:
		return tokopediaSpec(), nil
	case models.ChannelLazada:
		return lazadaSpec(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, ch)
}

func itoa(n int) string { return strconv.Itoa(n) }

func shopeeSpec() *ChannelSpec {
	v1 := PathSigner{}
	ep := func(name, method, path string, limit int, mutating bool) Endpoint {
		return Endpoint{Name: name, Method: method, Path: path, Signer: v1,
			RequiresAccessToken: true, RequiresShopID: true, RateLimit: limit, Mutating: mutating}
	}
	unlist := ep("unlist_item", http.MethodPost, "/api/v2/product/unlist_item", 100, true)
	// старый эндпоинт статуса подписывается по схеме v2
	unlist.Signer = ParamSigner{}

	return &ChannelSpec{
		Channel: models.ChannelShopee,
		Endpoints: map[Operation]Endpoint{
			OpCreateListing: ep("add_item", http.MethodPost, "/api/v2/product/add_item", 100, true),
			OpUpdateListing: ep("update_item", http.MethodPost, "/api/v2/product/update_item", 100, true),
			OpGetListing:    ep("get_item_base_info", http.MethodGet, "/api/v2/product/get_item_base_info", 600, false),
			OpUpdateStatus:  unlist,
			OpUpdateStock:   ep("update_stock", http.MethodPost, "/api/v2/product/update_stock", 300, true),
			OpUpdatePrice:   ep("update_price", http.MethodPost, "/api/v2/product/update_price", 300, true),
			OpListListings:  ep("get_item_list", http.MethodGet, "/api/v2/product/get_item_list", 600, false),
			OpListOrders:    ep("get_order_list", http.MethodGet, "/api/v2/order/get_order_list", 600, false),
		},
		listingBody: func(p models.ChannelPayload, externalID string) interface{} {
			body := map[string]interface{}{
				"item_name":      p.Title,
				"description":    p.Description,
				"original_price": p.Price,
				"seller_stock":   []map[string]int{{"stock": p.Stock}},
				"item_sku":       p.SKU,
				"category_id":    p.CategoryID,
				"brand":          map[string]string{"original_brand_name": p.Brand},
				"image":          map[string][]string{"image_url_list": p.Images},
				"weight":         float64(p.WeightGrams) / 1000,
			}
			if externalID != "" {
				body["item_id"] = externalID
			}
			return body
		},
		statusBody: func(externalID string, active bool) interface{} {
			return map[string]interface{}{
				"item_list": []map[string]interface{}{{"item_id": externalID, "unlist": !active}},
			}
		},
		stockBody: func(externalID string, stock int) interface{} {
			return map[string]interface{}{
				"item_id":    externalID,
				"stock_list": []map[string]interface{}{{"seller_stock": []map[string]int{{"stock": stock}}}},
			}
		},
		priceBody: func(externalID string, price decimal.Decimal) interface{} {
			return map[string]interface{}{
				"item_id":    externalID,
				"price_list": []map[string]interface{}{{"original_price": price}},
			}
		},
		getRequest: func(req *Request, externalID string) {
			req.Query = map[string]string{"item_id_list": externalID}
		},
		listQuery: func(offset, limit int) map[string]string {
			return map[string]string{"offset": itoa(offset), "page_size": itoa(limit), "item_status": "NORMAL"}
		},
		ordersQuery: func(since time.Time, cursor string, limit int) map[string]string {
			return map[string]string{
				"time_range_field": "update_time",
				"time_from":        strconv.FormatInt(since.Unix(), 10),
				"time_to":          strconv.FormatInt(time.Now().Unix(), 10),
				"page_size":        itoa(limit),
				"cursor":           cursor,
			}
		},
		listingURL: func(externalID, shopID string) string {
			return fmt.Sprintf("https://shopee.co.id/product/%s/%s", shopID, externalID)
		},
	}
}

func tiktokSpec() *ChannelSpec {
	v2 := ParamSigner{}
	ep := func(name, method, path string, limit int, mutating bool) Endpoint {
		return Endpoint{Name: name, Method: method, Path: path, Signer: v2,
			RequiresAccessToken: true, RequiresShopID: true, RateLimit: limit, Mutating: mutating}
	}
	return &ChannelSpec{
		Channel: models.ChannelTikTok,
		Endpoints: map[Operation]Endpoint{
			OpCreateListing: ep("create_product", http.MethodPost, "/product/202309/products", 50, true),
			OpUpdateListing: ep("edit_product", http.MethodPut, "/product/202309/products/{id}", 50, true),
			OpGetListing:    ep("get_product", http.MethodGet, "/product/202309/products/{id}", 300, false),
			OpUpdateStatus:  ep("activate_product", http.MethodPost, "/product/202309/products/activate", 50, true),
			OpUpdateStock:   ep("update_inventory", http.MethodPost, "/product/202309/products/{id}/inventory/update", 100, true),
			OpUpdatePrice:   ep("update_price", http.MethodPost, "/product/202309/products/{id}/prices/update", 100, true),
			OpListListings:  ep("search_products", http.MethodPost, "/product/202309/products/search", 300, false),
			OpListOrders:    ep("search_orders", http.MethodPost, "/order/202309/orders/search", 300, false),
		},
		listingBody: func(p models.ChannelPayload, externalID string) interface{} {
			images := make([]map[string]string, 0, len(p.Images))
			for _, img := range p.Images {
				images = append(images, map[string]string{"uri": img})
			}
			return map[string]interface{}{
				"title":       p.Title,
				"description": p.Description,
				"category_id": p.CategoryID,
				"brand_name":  p.Brand,
				"main_images": images,
				"skus": []map[string]interface{}{{
					"seller_sku": p.SKU,
					"price":      map[string]interface{}{"amount": p.Price, "currency": p.Currency},
					"inventory":  []map[string]int{{"quantity": p.Stock}},
				}},
				"package_weight": map[string]string{"value": itoa(p.WeightGrams), "unit": "GRAM"},
			}
		},
		statusBody: func(externalID string, active bool) interface{} {
			return map[string]interface{}{"product_ids": []string{externalID}, "active": active}
		},
		stockBody: func(externalID string, stock int) interface{} {
			return map[string]interface{}{"skus": []map[string]interface{}{{"inventory": []map[string]int{{"quantity": stock}}}}}
		},
		priceBody: func(externalID string, price decimal.Decimal) interface{} {
			return map[string]interface{}{"skus": []map[string]interface{}{{"price": map[string]interface{}{"amount": price}}}}
		},
		getRequest: func(req *Request, externalID string) {
			req.PathID = externalID
		},
		listQuery: func(offset, limit int) map[string]string {
			return map[string]string{"page_size": itoa(limit), "page_token": itoa(offset)}
		},
		ordersQuery: func(since time.Time, cursor string, limit int) map[string]string {
			return map[string]string{
				"update_time_ge": strconv.FormatInt(since.Unix(), 10),
				"page_size":      itoa(limit),
				"page_token":     cursor,
			}
		},
		listingURL: func(externalID, _ string) string {
			return "https://shop.tiktok.com/view/product/" + externalID
		},
	}
}

func tokopediaSpec() *ChannelSpec {
	v1 := PathSigner{}
	ep := func(name, method, path string, limit int, mutating bool) Endpoint {
		return Endpoint{Name: name, Method: method, Path: path, Signer: v1,
			RequiresAccessToken: true, RequiresShopID: true, RateLimit: limit, Mutating: mutating}
	}
	return &ChannelSpec{
		Channel: models.ChannelTokopedia,
		Endpoints: map[Operation]Endpoint{
			OpCreateListing: ep("create_products", http.MethodPost, "/v2/products/fs/create", 60, true),
			OpUpdateListing: ep("edit_products", http.MethodPatch, "/v2/products/fs/edit", 60, true),
			OpGetListing:    ep("get_product_info", http.MethodGet, "/inventory/v1/fs/product/info", 300, false),
			OpUpdateStatus:  ep("set_active", http.MethodPost, "/v1/products/fs/active", 60, true),
			OpUpdateStock:   ep("update_stock", http.MethodPost, "/inventory/v1/fs/stock/update", 120, true),
			OpUpdatePrice:   ep("update_price", http.MethodPost, "/inventory/v1/fs/price/update", 120, true),
			OpListListings:  ep("get_products", http.MethodGet, "/inventory/v1/fs/product/list", 300, false),
			OpListOrders:    ep("get_orders", http.MethodGet, "/v2/order/list", 300, false),
		},
		listingBody: func(p models.ChannelPayload, externalID string) interface{} {
			product := map[string]interface{}{
				"name":        p.Title,
				"description": p.Description,
				"category_id": p.CategoryID,
				"price":       p.Price,
				"stock":       p.Stock,
				"sku":         p.SKU,
				"weight":      p.WeightGrams,
				"weight_unit": "GR",
				"condition":   "NEW",
				"pictures":    p.Images,
			}
			if externalID != "" {
				product["id"] = externalID
			}
			return map[string]interface{}{"products": []interface{}{product}}
		},
		statusBody: func(externalID string, active bool) interface{} {
			return map[string]interface{}{"product_id": []string{externalID}, "active": active}
		},
		stockBody: func(externalID string, stock int) interface{} {
			return []map[string]interface{}{{"product_id": externalID, "new_stock": stock}}
		},
		priceBody: func(externalID string, price decimal.Decimal) interface{} {
			return []map[string]interface{}{{"product_id": externalID, "new_price": price}}
		},
		getRequest: func(req *Request, externalID string) {
			req.Query = map[string]string{"product_id": externalID}
		},
		listQuery: func(offset, limit int) map[string]string {
			return map[string]string{"page": itoa(offset/max(limit, 1) + 1), "per_page": itoa(limit)}
		},
		ordersQuery: func(since time.Time, cursor string, limit int) map[string]string {
			page := cursor
			if page == "" {
				page = "1"
			}
			return map[string]string{
				"from_date": strconv.FormatInt(since.Unix(), 10),
				"to_date":   strconv.FormatInt(time.Now().Unix(), 10),
				"page":      page,
				"per_page":  itoa(limit),
			}
		},
		listingURL: func(externalID, shopID string) string {
			return fmt.Sprintf("https://www.tokopedia.com/%s/product-%s", shopID, externalID)
		},
	}
}

func lazadaSpec() *ChannelSpec {
	v2 := ParamSigner{}
	ep := func(name, method, path string, limit int, mutating bool) Endpoint {
		return Endpoint{Name: name, Method: method, Path: path, Signer: v2,
			RequiresAccessToken: true, RateLimit: limit, Mutating: mutating}
	}
	return &ChannelSpec{
		Channel: models.ChannelLazada,
		Endpoints: map[Operation]Endpoint{
			OpCreateListing: ep("product_create", http.MethodPost, "/product/create", 60, true),
			OpUpdateListing: ep("product_update", http.MethodPost, "/product/update", 60, true),
			OpGetListing:    ep("product_item_get", http.MethodGet, "/product/item/get", 300, false),
			OpUpdateStatus:  ep("product_deactivate", http.MethodPost, "/product/deactivate", 60, true),
			OpUpdateStock:   ep("sellable_quantity_update", http.MethodPost, "/product/stock/sellable/update", 120, true),
			OpUpdatePrice:   ep("price_quantity_update", http.MethodPost, "/product/price_quantity/update", 120, true),
			OpListListings:  ep("products_get", http.MethodGet, "/products/get", 300, false),
			OpListOrders:    ep("orders_get", http.MethodGet, "/orders/get", 300, false),
		},
		listingBody: func(p models.ChannelPayload, externalID string) interface{} {
			attrs := map[string]interface{}{
				"name":        p.Title,
				"description": p.Description,
				"brand":       p.Brand,
			}
			for k, v := range p.Attributes {
				attrs[k] = v
			}
			product := map[string]interface{}{
				"PrimaryCategory": p.CategoryID,
				"Images":          map[string][]string{"Image": p.Images},
				"Attributes":      attrs,
				"Skus": map[string]interface{}{"Sku": []map[string]interface{}{{
					"SellerSku":      p.SKU,
					"quantity":       p.Stock,
					"price":          p.Price,
					"package_weight": float64(p.WeightGrams) / 1000,
				}}},
			}
			if externalID != "" {
				product["ItemId"] = externalID
			}
			return map[string]interface{}{"Request": map[string]interface{}{"Product": product}}
		},
		statusBody: func(externalID string, active bool) interface{} {
			return map[string]interface{}{"Request": map[string]interface{}{
				"Product": map[string]interface{}{"ItemId": externalID, "Active": active},
			}}
		},
		stockBody: func(externalID string, stock int) interface{} {
			return map[string]interface{}{"Request": map[string]interface{}{
				"Product": map[string]interface{}{"Skus": map[string]interface{}{"Sku": []map[string]interface{}{
					{"ItemId": externalID, "SellableQuantity": stock},
				}}},
			}}
		},
		priceBody: func(externalID string, price decimal.Decimal) interface{} {
			return map[string]interface{}{"Request": map[string]interface{}{
				"Product": map[string]interface{}{"Skus": map[string]interface{}{"Sku": []map[string]interface{}{
					{"ItemId": externalID, "Price": price},
				}}},
			}}
		},
		getRequest: func(req *Request, externalID string) {
			req.Query = map[string]string{"item_id": externalID}
		},
		listQuery: func(offset, limit int) map[string]string {
			return map[string]string{"offset": itoa(offset), "limit": itoa(limit), "filter": "live"}
		},
		ordersQuery: func(since time.Time, cursor string, limit int) map[string]string {
			offset := cursor
			if offset == "" {
				offset = "0"
			}
			return map[string]string{
				"update_after": since.UTC().Format(time.RFC3339),
				"offset":       offset,
				"limit":        itoa(limit),
			}
		},
		listingURL: func(externalID, _ string) string {
			return fmt.Sprintf("https://www.lazada.co.id/products/i%s.html", externalID)
		},
	}
}
