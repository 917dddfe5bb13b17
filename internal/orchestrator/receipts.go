package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/speps/go-hashids/v2"
)

// ReceiptGenerator produces short, non-guessable receipt references for
// confirmed payments.
type ReceiptGenerator struct {
	h *hashids.HashID
}

func NewReceiptGenerator(salt string) (*ReceiptGenerator, error) {
	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = 10

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("receipt hashids: %w", err)
	}
	return &ReceiptGenerator{h: h}, nil
}

func (g *ReceiptGenerator) Generate(userID int64, at time.Time) string {
	encoded, err := g.h.EncodeInt64([]int64{userID, at.Unix()})
	if err != nil {
		// EncodeInt64 only fails on negative input; fall back to a plain
		// timestamp reference rather than dropping the receipt.
		return fmt.Sprintf("MP-%d", at.Unix())
	}
	return "MP-" + strings.ToUpper(encoded)
}
