package market

// Provider supplies live order books.
type Provider interface {
	Subscribe(tokenIDs []string)
	GetBook(tokenID string) *Orderbook
	Start()
	Stop()
}
