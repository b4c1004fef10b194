// Package shopfinder embeds the shopfinder query pipeline in a Go program.
//
// The client loads a product snapshot, extracts constraints from free text,
// and answers through the same tier chain as the HTTP server: the optional
// semantic ranker, the optional Meilisearch index, then the local catalog.
//
//	client, _ := shopfinder.New(ctx,
//	    shopfinder.WithCatalogFile("data/products.json"),
//	    shopfinder.WithMeilisearch("http://localhost:7700", "", "products"),
//	)
//	defer client.Close()
//
//	payload, _ := client.Search(ctx, "samsung dưới 10 triệu pin trâu", 10)
//	for _, card := range payload.Products {
//	    fmt.Println(card.Name, card.Price.Current)
//	}
package shopfinder
