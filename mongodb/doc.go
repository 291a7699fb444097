// Package mongodb implements the account store and ledger store on MongoDB.
//
// The atomic multi-document commit primitive required by the funds engine is
// a MongoDB session transaction: each movement groups its conditional balance
// update(s) with the ledger insert in one all-or-nothing unit. The balance
// guard for outgoing legs ("balance >= amount") is part of the update filter,
// so concurrent movements against the same account serialize in storage.
//
// Monetary values are persisted as Decimal128 and converted to
// shopspring decimals at the boundary; floats never touch a balance.
package mongodb
