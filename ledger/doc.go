// Package ledger provides the funds-movement domain model and validations.
//
// Core types:
//   - Account and Transaction, the records owned by the account and ledger stores.
//   - NotificationEvent and ErrorEvent, the side effects emitted after a
//     movement decision is final.
//   - DomainError, the typed error taxonomy shared by every movement path.
//
// The package is storage-agnostic and enforces deterministic behavior using
// typed domain errors.
package ledger
