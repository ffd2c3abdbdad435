package pdf

import (
	"context"
	"io"
)

// Receipt is the rendered confirmation for a completed AI message top-up.
type Receipt struct {
	ReceiptNumber string
	OrgName       string
	DatePaid      string
	Description   string
	Quantity      int64
	UnitPrice     string
	Total         string
}

type Provider interface {
	GenerateReceipt(ctx context.Context, receipt Receipt) (io.Reader, error)
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}
