package dto

// AlertQuery filters GET /alerts.
type AlertQuery struct {
	PageQuery
	ProductID string   `form:"productId"`
	Types     []string `form:"type"`
	Active    *bool    `form:"active"`
	Unread    *bool    `form:"unread"`
}
