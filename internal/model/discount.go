package model

// ApplyDiscountRequest is the DTO for POST /api/discount/apply.
// A blank code is not rejected here; the discount flow records it as a failed attempt.
type ApplyDiscountRequest struct {
	Code string `json:"code" validate:"max=64"`
}

// PageURLRequest is the DTO for POST /api/discount/url.
type PageURLRequest struct {
	URL string `json:"url" validate:"required,notblank,max=2048,pageurl"`
}
