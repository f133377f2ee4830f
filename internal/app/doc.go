// Package app wires application dependencies for the CLI and runs its
// multi-step flows.
//
// LoadConfig reads a .env file and the environment. NewWire builds the
// stores (files under Home, or Redis when SIGNALCORE_REDIS_ADDR is set),
// the services and the key directory client. The Wire methods are what the
// sigctl commands call: Init, Publish, StartSession, Seal, Open and the
// Group* family.
package app
