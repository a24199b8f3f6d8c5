package models

// Category labels maintenance requests; managed by admins only.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
