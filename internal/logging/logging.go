package logging

import "go.uber.org/zap"

// New returns the process logger. Development mode gets the human-readable
// console encoder; everything else logs JSON.
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
