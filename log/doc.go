// Package log defines the logging interface and typed logging fields used
// across the funds engine.
//
// Adapters (see NewZap) implement Logger so collaborators can keep logging
// calls consistent across backends. Packages that receive no logger fall back
// to the no-op implementation.
package log
