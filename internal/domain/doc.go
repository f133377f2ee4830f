// Package domain defines the data models and interfaces shared across the app.
// It contains plain types (addresses, directory payloads, envelopes) and
// contracts (stores, services, key directory) only.
package domain
