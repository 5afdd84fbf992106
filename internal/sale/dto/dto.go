package dto

type SaleFilters struct {
	OwnerID    string
	CustomerID string
	Page       int
	PageSize   int
}
