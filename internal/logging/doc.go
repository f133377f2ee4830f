// Package logging builds the zap loggers used by the services, the key
// directory and the CLIs. The protocol packages never log.
package logging
