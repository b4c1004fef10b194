package product

// CatalogStats summarizes a loaded catalog snapshot.
type CatalogStats struct {
	Products   int      `json:"products"`
	Brands     []string `json:"brands"`
	Categories []string `json:"categories"`
	Indexed    bool     `json:"indexed"`
}
