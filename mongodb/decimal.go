package mongodb

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toDecimal128 converts a decimal amount to the BSON Decimal128 type used for
// stored balances and transaction amounts.
func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert decimal to decimal128: %w", err)
	}

	return v, nil
}

// fromDecimal128 converts a stored Decimal128 value back to a decimal amount.
func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert decimal128 to decimal: %w", err)
	}

	return d, nil
}
